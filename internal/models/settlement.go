package models

// Settlement types.
const (
	SettlementTypeStage    = "stage"
	SettlementTypeComment  = "comment"
	SettlementTypeReversal = "reversal"
)

// Settlement statuses.
const (
	SettlementStatusActive   = "active"
	SettlementStatusReversed = "reversed"
)

// Settlement is a named batch of ledger transactions produced by one
// distribution event. Its TotalRewardDistributed always equals the sum of
// its member transactions' amounts. An active settlement transitions to
// reversed exactly once; reversal creates a new settlement of type
// "reversal" rather than mutating this one.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// ProjectID scopes the settlement to one project.
	ProjectID string

	// StageID is the stage this settlement distributes rewards for.
	StageID string

	// Type is one of the SettlementType constants.
	Type string

	// SettlementTime is the Unix timestamp (milliseconds) of the batch.
	SettlementTime int64

	// OperatorEmail is who triggered the settlement ("system" for the
	// automated sweep).
	OperatorEmail string

	// TotalRewardDistributed is the sum of the batch's amounts. Negative
	// for reversal settlements.
	TotalRewardDistributed int64

	// ParticipantCount is the number of distinct members in the batch.
	ParticipantCount int

	// Status is active or reversed.
	Status string

	// ReversedTime, ReversedBy and ReversedReason record the reversal of
	// this settlement, once it happens.
	ReversedTime   int64
	ReversedBy     string
	ReversedReason string

	// OriginalSettlementID is set on reversal settlements only and points
	// at the settlement being undone. A uniqueness constraint on it is the
	// double-reversal guard.
	OriginalSettlementID string
}
