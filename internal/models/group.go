package models

// Submission statuses.
const (
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusApproved  = "approved"
	SubmissionStatusWithdrawn = "withdrawn"
)

// Group is a competing team within a project. Read-model snapshot: the core
// never mutates groups.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// ProjectID is the project this group competes in.
	ProjectID string

	// Name is the display name of the group.
	Name string

	// Active groups participate in ranking and distribution.
	Active bool

	// Members lists the group's member emails with activity flags.
	Members []GroupMember
}

// GroupMember is one member of a group.
type GroupMember struct {
	UserEmail string
	Active    bool
}

// ActiveMemberEmails returns the emails of currently active members.
func (g *Group) ActiveMemberEmails() []string {
	var emails []string
	for _, m := range g.Members {
		if m.Active {
			emails = append(emails, m.UserEmail)
		}
	}
	return emails
}

// Submission is a group's deliverable for one stage. Its participation
// proposal (per-member percentage of credit, summing to 100) is the primary
// input to the weight-distribution algorithm alongside the group's rank.
type Submission struct {
	// ID is the unique identifier for the submission (UUID format).
	ID string

	// StageID and GroupID scope the submission.
	StageID string
	GroupID string

	// Status is one of the SubmissionStatus constants. The sweep
	// auto-approves submitted submissions when the stage's active window
	// closes.
	Status string

	// Participation maps member email → percentage of credit claimed.
	// Percentages sum to 100 per group, in multiples of the configured
	// granularity.
	Participation map[string]float64

	// SubmittedTime is the Unix timestamp (milliseconds) of submission.
	SubmittedTime int64
}
