package models

// Transaction types written by the settlement engine.
const (
	TxTypeStageSettlement    = "stage_settlement"
	TxTypeCommentSettlement  = "comment_settlement"
	TxTypeSettlementReversal = "settlement_reversal"
	TxTypeManualAward        = "manual_award"
)

// Transaction is one immutable signed point movement in the ledger.
// Once written, a transaction's fields never change; undoing one means
// writing a new transaction with the additive inverse amount and a
// back-reference in Metadata.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string

	// ProjectID scopes the transaction to one project's ledger.
	ProjectID string

	// UserEmail is the account the amount is credited to (or debited from).
	UserEmail string

	// Amount is the signed point amount. Positive for awards, negative for
	// reversals.
	Amount int64

	// Type is one of the TxType constants.
	Type string

	// Source is a free-text reason shown to the user.
	Source string

	// Timestamp is the Unix timestamp (milliseconds) when the transaction
	// was written.
	Timestamp int64

	// StageID is the stage this transaction relates to, if any.
	StageID string

	// SettlementID groups the transaction into a settlement batch, if any.
	SettlementID string

	// RelatedSubmissionID links back to the submission that earned the
	// points, if any.
	RelatedSubmissionID string

	// RelatedCommentID links back to a rewarded comment, if any.
	RelatedCommentID string

	// Metadata is an opaque key-value map (stored as JSON). Reversal
	// transactions carry originalTransactionId here.
	Metadata map[string]string
}

// LedgerEntry is a transaction paired with the running balance after it,
// in time order. Produced by the balance aggregator for display.
type LedgerEntry struct {
	Transaction
	RunningBalance int64
}
