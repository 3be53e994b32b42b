// Package server exposes the settlement core over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peergrade/peergrade/internal/apperr"
	"github.com/peergrade/peergrade/internal/auth"
	"github.com/peergrade/peergrade/internal/ledger"
	"github.com/peergrade/peergrade/internal/lifecycle"
	"github.com/peergrade/peergrade/internal/middleware"
	"github.com/peergrade/peergrade/internal/settlement"
	"github.com/peergrade/peergrade/internal/storage"
)

// Server holds the handler dependencies.
type Server struct {
	store   storage.Store
	engine  *settlement.Engine
	machine *lifecycle.Machine
	ledger  *ledger.Service
	perms   lifecycle.PermissionChecker
	jwt     *auth.JWTManager
}

// New wires a server. A nil jwtManager disables authentication.
func New(store storage.Store, engine *settlement.Engine, machine *lifecycle.Machine, ledgerSvc *ledger.Service, perms lifecycle.PermissionChecker, jwtManager *auth.JWTManager) *Server {
	return &Server{
		store:   store,
		engine:  engine,
		machine: machine,
		ledger:  ledgerSvc,
		perms:   perms,
		jwt:     jwtManager,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RequireAuth(s.jwt))
	{
		api.GET("/stages/:stageID/settlement/preview", s.previewSettlement)
		api.POST("/stages/:stageID/settle", s.settleStage)
		api.POST("/stages/:stageID/transition", s.forceTransition)
		api.POST("/settlements/:settlementID/reverse", s.reverseSettlement)
		api.GET("/settlements/:settlementID", s.getSettlement)
		api.GET("/projects/:projectID/settlements", s.listSettlements)
		api.GET("/projects/:projectID/ledger/:userEmail", s.getLedger)
	}
	return r
}

// respond writes the success envelope.
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError maps an error to an HTTP status and the error envelope.
func respondError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Wrap(err, apperr.CodeInternal, "internal error")
	}
	c.Error(err)
	c.JSON(statusFor(e.Code), gin.H{
		"success": false,
		"error":   gin.H{"code": e.Code, "message": e.Message},
	})
}

func statusFor(code string) int {
	switch code {
	case apperr.CodeInvalidInput, apperr.CodeInvalidDistributionInput:
		return http.StatusBadRequest
	case apperr.CodeInsufficientPermission:
		return http.StatusForbidden
	case apperr.CodeStageNotFound, apperr.CodeSettlementNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidTransition, apperr.CodeAlreadySettled,
		apperr.CodeAlreadyReversed, apperr.CodeNoConsensus, apperr.CodeNoTransactions:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
