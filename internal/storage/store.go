// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/peergrade/peergrade/internal/models"
)

// TransactionFilter narrows ledger queries. Zero values mean "no filter".
type TransactionFilter struct {
	StageID      string
	SettlementID string
	Type         string
	Limit        int
}

// SettlementFilter narrows settlement history queries.
type SettlementFilter struct {
	StageID string
	Type    string
	Status  string
}

// Store defines the persistence interface for the settlement core.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the engines.
//
// The ledger is append-only: there are no update or delete operations on
// transactions, and balances are always derived by summing amounts.
type Store interface {
	// AppendTransaction writes one ledger transaction. The ID and
	// Timestamp fields are populated if unset.
	AppendTransaction(ctx context.Context, tx *models.Transaction) error

	// ListTransactions returns a user's transactions in ascending time
	// order, optionally filtered.
	ListTransactions(ctx context.Context, projectID, userEmail string, f TransactionFilter) ([]*models.Transaction, error)

	// ListSettlementTransactions returns every transaction in a
	// settlement batch.
	ListSettlementTransactions(ctx context.Context, settlementID string) ([]*models.Transaction, error)

	// SumTransactions returns the balance: the sum of matching amounts.
	SumTransactions(ctx context.Context, projectID, userEmail string, f TransactionFilter) (int64, error)

	// GetSettlement retrieves a settlement by ID.
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// ListSettlements returns a project's settlement history, newest
	// first.
	ListSettlements(ctx context.Context, projectID string, f SettlementFilter) ([]*models.Settlement, error)

	// CreateSettlementBatch atomically writes a settlement record, its
	// member transactions, and marks the stage completed with its final
	// rankings. The store-level uniqueness constraint on active stage
	// settlements is the at-most-once guard: a second settle for the same
	// stage fails with apperr.AlreadySettled.
	CreateSettlementBatch(ctx context.Context, s *models.Settlement, txs []*models.Transaction, finalRankings string) error

	// ReverseSettlementBatch atomically flips the original settlement to
	// reversed (compare-and-set on status), writes the reversal
	// settlement and its inverse transactions, and rolls the stage back
	// to voting clearing cached rankings. Fails with
	// apperr.AlreadyReversed if the original is not active.
	ReverseSettlementBatch(ctx context.Context, original, reversal *models.Settlement, txs []*models.Transaction) error

	// CreateStage persists a new stage.
	CreateStage(ctx context.Context, stage *models.Stage) error

	// GetStage retrieves a stage by ID.
	GetStage(ctx context.Context, stageID string) (*models.Stage, error)

	// ListUnfinishedStages returns every stage not yet completed, across
	// all projects, for the patrol sweep.
	ListUnfinishedStages(ctx context.Context) ([]*models.Stage, error)

	// TransitionStage updates a stage's status with a compare-and-set on
	// the expected current status. Returns false (without error) when the
	// stage was not in fromStatus, so concurrent sweeps cannot double-
	// apply a transition.
	TransitionStage(ctx context.Context, stageID, fromStatus, toStatus, forcedBy string) (bool, error)

	// TryMarkStage records an idempotency marker for a stage. Returns
	// true if the marker was newly written, false if it already existed.
	TryMarkStage(ctx context.Context, stageID, marker string) (bool, error)

	// CreateProposal persists a ranking proposal.
	CreateProposal(ctx context.Context, p *models.RankingProposal) error

	// ListProposals returns a stage's proposals grouped by authoring
	// group.
	ListProposals(ctx context.Context, stageID string) ([]*models.RankingProposal, error)

	// UpsertVote records a member's vote on a proposal; re-voting
	// replaces the previous record for (proposal, voter).
	UpsertVote(ctx context.Context, v *models.ProposalVote) error

	// ListVotes returns all votes for a stage's proposals.
	ListVotes(ctx context.Context, stageID string) ([]*models.ProposalVote, error)

	// AddTeacherRanking appends one teacher ranking record (history is
	// kept; readers pick the latest per teacher+group).
	AddTeacherRanking(ctx context.Context, r *models.TeacherRanking) error

	// ListTeacherRankings returns a stage's full teacher ranking history.
	ListTeacherRankings(ctx context.Context, stageID string) ([]*models.TeacherRanking, error)

	// CreateGroup persists a group with its members.
	CreateGroup(ctx context.Context, g *models.Group) error

	// ListGroups returns a project's groups with members.
	ListGroups(ctx context.Context, projectID string) ([]*models.Group, error)

	// CreateSubmission persists a group's submission for a stage.
	CreateSubmission(ctx context.Context, s *models.Submission) error

	// ListSubmissions returns a stage's submissions.
	ListSubmissions(ctx context.Context, stageID string) ([]*models.Submission, error)

	// ApproveSubmission marks a submitted submission approved (the sweep
	// auto-approval). Already-approved submissions are left untouched.
	ApproveSubmission(ctx context.Context, submissionID string) error

	// Close releases any resources held by the store.
	Close() error
}
