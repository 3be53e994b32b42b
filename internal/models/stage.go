package models

// Stage statuses, in lifecycle order. Status is monotonic: the only
// backward transition is an administrative settlement reversal, which rolls
// a completed stage back to voting.
const (
	StageStatusPending   = "pending"
	StageStatusActive    = "active"
	StageStatusVoting    = "voting"
	StageStatusCompleted = "completed"
)

// Stage is one timed phase of a project's competition.
type Stage struct {
	// ID is the unique identifier for the stage (UUID format).
	ID string

	// ProjectID is the project this stage belongs to.
	ProjectID string

	// Name is the display name of the stage.
	Name string

	// Order is the 1-based position of the stage within the project.
	Order int

	// Status is one of the StageStatus constants.
	Status string

	// StartDate and EndDate bound the active (submission) window, Unix
	// milliseconds.
	StartDate int64
	EndDate   int64

	// ConsensusDeadline, if non-zero, is when voting closes regardless of
	// unresolved groups.
	ConsensusDeadline int64

	// ReportRewardPool is the points distributed for stage submissions.
	ReportRewardPool int64

	// CommentRewardPool is the points reserved for comment rewards.
	CommentRewardPool int64

	// FinalRankings caches the settled ranking (groupID → rank) as JSON.
	// Cleared when the settlement is reversed.
	FinalRankings string

	// SettledTime is when the stage was settled, zero if it wasn't.
	SettledTime int64

	// ForcedBy and ForcedTime record the last manual override, if any.
	ForcedBy   string
	ForcedTime int64
}

// ValidStageTransitions is the forward-only edge set enforced for both the
// automated sweep and manual overrides. Completed has no outgoing edges.
var ValidStageTransitions = map[string][]string{
	StageStatusPending:   {StageStatusActive},
	StageStatusActive:    {StageStatusVoting, StageStatusCompleted},
	StageStatusVoting:    {StageStatusCompleted},
	StageStatusCompleted: {},
}

// CanTransition reports whether from → to is a permitted stage edge.
func CanTransition(from, to string) bool {
	for _, s := range ValidStageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
