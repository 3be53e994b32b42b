package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/peergrade/peergrade/internal/apperr"
	"github.com/peergrade/peergrade/internal/lifecycle"
	"github.com/peergrade/peergrade/internal/middleware"
	"github.com/peergrade/peergrade/internal/storage"
)

func (s *Server) previewSettlement(c *gin.Context) {
	res, err := s.engine.Preview(c.Request.Context(), c.Param("stageID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"ranking":        res.Ranking,
		"distribution":   res.Distribution,
		"excludedGroups": res.ExcludedGroups,
	})
}

func (s *Server) settleStage(c *gin.Context) {
	stageID := c.Param("stageID")
	operator := middleware.Email(c)
	if err := s.requireManage(c, stageID, operator); err != nil {
		respondError(c, err)
		return
	}
	res, err := s.engine.Settle(c.Request.Context(), stageID, operator)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"settlement":     res.Settlement,
		"ranking":        res.Ranking,
		"distribution":   res.Distribution,
		"excludedGroups": res.ExcludedGroups,
	})
}

type reverseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) reverseSettlement(c *gin.Context) {
	settlementID := c.Param("settlementID")
	operator := middleware.Email(c)

	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeInvalidInput, "reason is required"))
		return
	}

	original, err := s.store.GetSettlement(c.Request.Context(), settlementID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok, err := s.perms.Can(c.Request.Context(), operator, original.ProjectID, lifecycle.CapabilityManage)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, apperr.InsufficientPermission(operator, lifecycle.CapabilityManage))
		return
	}

	reversal, err := s.engine.Reverse(c.Request.Context(), settlementID, operator, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"reversal": reversal})
}

type transitionRequest struct {
	Target string `json:"target" binding:"required"`
}

func (s *Server) forceTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeInvalidInput, "target is required"))
		return
	}
	stage, err := s.machine.ForceTransition(c.Request.Context(), c.Param("stageID"), req.Target, middleware.Email(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"stage": stage})
}

func (s *Server) getLedger(c *gin.Context) {
	projectID := c.Param("projectID")
	userEmail := c.Param("userEmail")

	f := storage.TransactionFilter{
		StageID:      c.Query("stage"),
		SettlementID: c.Query("settlement"),
		Type:         c.Query("type"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(c, apperr.New(apperr.CodeInvalidInput, "invalid limit: %s", raw))
			return
		}
		f.Limit = limit
	}

	entries, err := s.ledger.History(c.Request.Context(), projectID, userEmail, f)
	if err != nil {
		respondError(c, err)
		return
	}
	balance, err := s.ledger.Balance(c.Request.Context(), projectID, userEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"balance": balance,
		"entries": entries,
	})
}

func (s *Server) listSettlements(c *gin.Context) {
	f := storage.SettlementFilter{
		StageID: c.Query("stage"),
		Type:    c.Query("type"),
		Status:  c.Query("status"),
	}
	settlements, err := s.store.ListSettlements(c.Request.Context(), c.Param("projectID"), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"settlements": settlements})
}

func (s *Server) getSettlement(c *gin.Context) {
	settlementID := c.Param("settlementID")
	st, err := s.store.GetSettlement(c.Request.Context(), settlementID)
	if err != nil {
		respondError(c, err)
		return
	}
	txs, err := s.store.ListSettlementTransactions(c.Request.Context(), settlementID)
	if err != nil {
		respondError(c, err)
		return
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	respond(c, http.StatusOK, gin.H{
		"settlement":   st,
		"transactions": txs,
		"sum":          sum,
		"sumMatches":   sum == st.TotalRewardDistributed,
	})
}

// requireManage checks the manage capability against the stage's project.
func (s *Server) requireManage(c *gin.Context, stageID, operator string) error {
	stage, err := s.store.GetStage(c.Request.Context(), stageID)
	if err != nil {
		return err
	}
	ok, err := s.perms.Can(c.Request.Context(), operator, stage.ProjectID, lifecycle.CapabilityManage)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InsufficientPermission(operator, lifecycle.CapabilityManage)
	}
	return nil
}
