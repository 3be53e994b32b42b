package models

// RankingProposal is a member's candidate ordering of all competing groups
// for a stage. Proposals become immutable once the stage settles.
type RankingProposal struct {
	// ID is the unique identifier for the proposal (UUID format).
	ID string

	// ProjectID and StageID scope the proposal.
	ProjectID string
	StageID   string

	// GroupID is the group whose consensus this proposal is a candidate for.
	GroupID string

	// ProposerEmail is the member who authored the proposal.
	ProposerEmail string

	// Ranking maps groupID → rank (1 = best) over every competing group.
	Ranking map[string]int

	// CreatedTime is the Unix timestamp (milliseconds) of creation. Ties
	// between simultaneously-qualifying proposals are broken by earliest
	// CreatedTime.
	CreatedTime int64
}

// ProposalVote is one member's approve/reject record on a proposal, keyed
// by (ProposalID, VoterEmail). Re-voting replaces the previous vote.
type ProposalVote struct {
	ID         string
	ProposalID string
	VoterEmail string
	Approve    bool
	Timestamp  int64
}

// TeacherRanking is a reviewer's direct ranking of one group for a stage.
// Rankings are kept as history; resolution uses the latest CreatedTime per
// (TeacherEmail, GroupID).
type TeacherRanking struct {
	ID           string
	ProjectID    string
	StageID      string
	TeacherEmail string
	GroupID      string
	Rank         int
	CreatedTime  int64
}

// GroupConsensus is the resolved outcome for one group's ranking vote.
type GroupConsensus struct {
	GroupID string

	// Reached reports whether a proposal accumulated quorum approvals
	// before the deadline.
	Reached bool

	// Proposal is the winning proposal when Reached.
	Proposal *RankingProposal

	// Approvals and ActiveMembers describe the quorum arithmetic.
	Approvals     int
	ActiveMembers int
}
