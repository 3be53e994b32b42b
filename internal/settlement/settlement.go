// Package settlement turns a stage's resolved rankings into ledger
// transactions, and undoes them.
//
// Settle is at-most-once per stage: the store's uniqueness constraint on
// active stage settlements rejects a concurrent or retried settle. Reverse
// never mutates history; it appends inverse transactions under a fresh
// reversal settlement and flips the original's status with a compare-and-set.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/peergrade/peergrade/internal/apperr"
	"github.com/peergrade/peergrade/internal/consensus"
	"github.com/peergrade/peergrade/internal/distribution"
	"github.com/peergrade/peergrade/internal/metrics"
	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/notify"
	"github.com/peergrade/peergrade/internal/readmodel"
	"github.com/peergrade/peergrade/internal/storage"
)

// SystemOperator is recorded on settlements triggered by the automated
// sweep rather than a human operator.
const SystemOperator = "system"

// Config tunes the ranking merge and distribution.
type Config struct {
	Consensus   consensus.Config
	Granularity float64
}

// DefaultConfig returns majority quorum, 0.3 teacher weight, 5% granularity.
func DefaultConfig() Config {
	return Config{
		Consensus:   consensus.DefaultConfig(),
		Granularity: distribution.DefaultGranularity,
	}
}

// Engine computes and commits stage settlements.
type Engine struct {
	store    storage.Store
	cache    *readmodel.Cache
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
}

// NewEngine wires a settlement engine.
func NewEngine(store storage.Store, cache *readmodel.Cache, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Granularity == 0 {
		cfg.Granularity = distribution.DefaultGranularity
	}
	return &Engine{store: store, cache: cache, notifier: notifier, logger: logger, cfg: cfg}
}

// Result describes one computed (or committed) settlement.
type Result struct {
	// Settlement is nil for previews.
	Settlement *models.Settlement

	// Ranking is the merged final ranking the distribution used.
	Ranking *consensus.StageRanking

	// Distribution holds the per-member point amounts.
	Distribution *distribution.Result

	// ExcludedGroups lists groups left out of the distribution because
	// their members reached no consensus.
	ExcludedGroups []string
}

// Preview runs the full settlement computation without writing anything.
func (e *Engine) Preview(ctx context.Context, stageID string) (*Result, error) {
	stage, err := e.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	return e.compute(ctx, stage)
}

// Settle commits a stage settlement: one settlement record, one ledger
// transaction per member, and the stage flipped to completed with its final
// ranking cached, all in one store transaction. A second settle for the
// same stage fails with apperr.AlreadySettled.
func (e *Engine) Settle(ctx context.Context, stageID, operator string) (*Result, error) {
	stage, err := e.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Status == models.StageStatusCompleted {
		// A completed stage normally carries an active settlement, but a
		// forced transition or a deadline close can complete one without.
		existing, lerr := e.store.ListSettlements(ctx, stage.ProjectID, storage.SettlementFilter{
			StageID: stageID,
			Type:    models.SettlementTypeStage,
			Status:  models.SettlementStatusActive,
		})
		if lerr != nil {
			return nil, lerr
		}
		if len(existing) > 0 {
			return nil, apperr.AlreadySettled(stageID)
		}
		return nil, apperr.New(apperr.CodeInvalidTransition,
			"stage %s is completed without a settlement, settlement requires voting", stageID)
	}
	if stage.Status != models.StageStatusVoting {
		return nil, apperr.New(apperr.CodeInvalidTransition,
			"stage %s is %s, settlement requires voting", stageID, stage.Status)
	}

	res, err := e.compute(ctx, stage)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	st := &models.Settlement{
		ID:                     uuid.New().String(),
		ProjectID:              stage.ProjectID,
		StageID:                stage.ID,
		Type:                   models.SettlementTypeStage,
		SettlementTime:         now,
		OperatorEmail:          operator,
		TotalRewardDistributed: res.Distribution.TotalDistributed,
		ParticipantCount:       len(res.Distribution.Members),
		Status:                 models.SettlementStatusActive,
	}
	txs := make([]*models.Transaction, 0, len(res.Distribution.Members))
	for _, m := range res.Distribution.Members {
		txs = append(txs, &models.Transaction{
			ProjectID:           stage.ProjectID,
			UserEmail:           m.UserEmail,
			Amount:              m.Points,
			Type:                models.TxTypeStageSettlement,
			Source:              fmt.Sprintf("Stage %q settlement: rank %d, %.0f%% participation", stage.Name, m.Rank, m.Percentage),
			Timestamp:           now,
			StageID:             stage.ID,
			RelatedSubmissionID: m.SubmissionID,
			Metadata: map[string]string{
				"groupId": m.GroupID,
			},
		})
	}

	finalRankings, err := json.Marshal(res.Ranking.Ranks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode final rankings: %w", err)
	}
	if err := e.store.CreateSettlementBatch(ctx, st, txs, string(finalRankings)); err != nil {
		return nil, err
	}
	metrics.Settlements.Inc()
	e.logger.InfoContext(ctx, "stage settled",
		"stage_id", stage.ID,
		"settlement_id", st.ID,
		"operator", operator,
		"participants", st.ParticipantCount,
		"distributed", st.TotalRewardDistributed)

	res.Settlement = st
	e.notifySettled(ctx, stage, res)
	return res, nil
}

// Reverse undoes an active settlement: inverse transactions under a fresh
// reversal settlement, the original flipped to reversed, and (for stage
// settlements) the stage rolled back to voting with its cached ranking
// cleared. Reversing a reversed settlement fails with apperr.AlreadyReversed.
func (e *Engine) Reverse(ctx context.Context, settlementID, operator, reason string) (*models.Settlement, error) {
	original, err := e.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if original.Status != models.SettlementStatusActive {
		return nil, apperr.AlreadyReversed(settlementID)
	}
	if original.Type == models.SettlementTypeReversal {
		return nil, apperr.New(apperr.CodeInvalidInput,
			"settlement %s is itself a reversal", settlementID)
	}

	txs, err := e.store.ListSettlementTransactions(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, apperr.New(apperr.CodeNoTransactions,
			"settlement %s has no transactions to reverse", settlementID)
	}

	now := time.Now().UnixMilli()
	reversal := &models.Settlement{
		ID:                   uuid.New().String(),
		ProjectID:            original.ProjectID,
		StageID:              original.StageID,
		Type:                 models.SettlementTypeReversal,
		SettlementTime:       now,
		OperatorEmail:        operator,
		ParticipantCount:     original.ParticipantCount,
		Status:               models.SettlementStatusActive,
		OriginalSettlementID: original.ID,
	}
	inverse := make([]*models.Transaction, 0, len(txs))
	for _, tx := range txs {
		reversal.TotalRewardDistributed -= tx.Amount
		inverse = append(inverse, &models.Transaction{
			ProjectID:           tx.ProjectID,
			UserEmail:           tx.UserEmail,
			Amount:              -tx.Amount,
			Type:                models.TxTypeSettlementReversal,
			Source:              fmt.Sprintf("Reversal of settlement %s: %s", original.ID, reason),
			Timestamp:           now,
			StageID:             tx.StageID,
			RelatedSubmissionID: tx.RelatedSubmissionID,
			RelatedCommentID:    tx.RelatedCommentID,
			Metadata: map[string]string{
				"originalTransactionId": tx.ID,
			},
		})
	}

	original.ReversedTime = now
	original.ReversedBy = operator
	original.ReversedReason = reason
	if err := e.store.ReverseSettlementBatch(ctx, original, reversal, inverse); err != nil {
		return nil, err
	}
	metrics.Reversals.Inc()
	e.logger.InfoContext(ctx, "settlement reversed",
		"settlement_id", original.ID,
		"reversal_id", reversal.ID,
		"operator", operator,
		"reason", reason)
	return reversal, nil
}

// compute resolves consensus, merges rankings and runs the distribution.
// It reads state but writes nothing.
func (e *Engine) compute(ctx context.Context, stage *models.Stage) (*Result, error) {
	groups, err := e.cache.Groups(ctx, stage.ProjectID)
	if err != nil {
		return nil, err
	}
	var active []*models.Group
	for _, g := range groups {
		if g.Active {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		return nil, apperr.New(apperr.CodeInvalidDistributionInput,
			"project %s has no active groups", stage.ProjectID)
	}

	proposals, err := e.store.ListProposals(ctx, stage.ID)
	if err != nil {
		return nil, err
	}
	votes, err := e.store.ListVotes(ctx, stage.ID)
	if err != nil {
		return nil, err
	}
	teacherRankings, err := e.store.ListTeacherRankings(ctx, stage.ID)
	if err != nil {
		return nil, err
	}

	byGroup := make(map[string][]*models.RankingProposal)
	for _, p := range proposals {
		byGroup[p.GroupID] = append(byGroup[p.GroupID], p)
	}
	outcomes := make(map[string]*models.GroupConsensus, len(active))
	for _, g := range active {
		outcomes[g.ID] = consensus.ResolveGroup(g, byGroup[g.ID], votes, e.cfg.Consensus)
	}

	ranking := consensus.ResolveStage(active, outcomes, teacherRankings, e.cfg.Consensus)
	if len(ranking.NoConsensus) == len(active) {
		return nil, apperr.New(apperr.CodeNoConsensus,
			"no group in stage %s reached consensus", stage.ID)
	}

	subs, err := e.cache.Submissions(ctx, stage.ID)
	if err != nil {
		return nil, err
	}
	submissionFor := make(map[string]*models.Submission)
	for _, s := range subs {
		if s.Status == models.SubmissionStatusWithdrawn {
			continue
		}
		if cur, ok := submissionFor[s.GroupID]; !ok || s.SubmittedTime > cur.SubmittedTime {
			submissionFor[s.GroupID] = s
		}
	}

	excluded := make(map[string]bool, len(ranking.NoConsensus))
	for _, gid := range ranking.NoConsensus {
		excluded[gid] = true
	}

	// Groups without consensus or without a submission keep their rank slot
	// (occupied-rank) but receive no member awards.
	inputs := make([]distribution.GroupInput, 0, len(active))
	for _, g := range active {
		sub, ok := submissionFor[g.ID]
		in := distribution.GroupInput{
			GroupID: g.ID,
			Rank:    ranking.Ranks[g.ID],
		}
		if ok && !excluded[g.ID] {
			in.SubmissionID = sub.ID
			in.Participation = sub.Participation
		} else {
			in.Participation = map[string]float64{}
			if !ok && !excluded[g.ID] {
				excluded[g.ID] = true
				ranking.NoConsensus = append(ranking.NoConsensus, g.ID)
			}
		}
		inputs = append(inputs, in)
	}

	dist, err := distribution.Distribute(inputs, stage.ReportRewardPool, e.cfg.Granularity)
	if err != nil {
		return nil, err
	}

	var excludedList []string
	for _, g := range active {
		if excluded[g.ID] {
			excludedList = append(excludedList, g.ID)
		}
	}
	return &Result{Ranking: ranking, Distribution: dist, ExcludedGroups: excludedList}, nil
}

func (e *Engine) notifySettled(ctx context.Context, stage *models.Stage, res *Result) {
	recipients := make([]string, 0, len(res.Distribution.Members))
	for _, m := range res.Distribution.Members {
		recipients = append(recipients, m.UserEmail)
	}
	e.notifier.StageSettled(ctx, stage.ID, recipients)
}
