// Package notify defines the outbound notification collaborator.
//
// Notifications are fire-and-forget: a failed or missing notification never
// blocks or fails the operation that triggered it.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers user-facing notifications. Implementations must not
// block on delivery; errors are the implementation's problem to log.
type Notifier interface {
	// StageStarted tells a stage's participants the submission window opened.
	StageStarted(ctx context.Context, projectID, stageID, stageName string, recipients []string)

	// SubmissionApproved tells a group its submission was auto-approved when
	// the stage moved to voting.
	SubmissionApproved(ctx context.Context, stageID, groupID string, recipients []string)

	// DeadlineMissed tells a group it has no submission and is excluded from
	// the stage's rewards.
	DeadlineMissed(ctx context.Context, stageID, groupID string, recipients []string)

	// DeadlineReminder warns a group the submission window closes within a
	// day.
	DeadlineReminder(ctx context.Context, stageID, groupID string, recipients []string)

	// StageSettled tells members the stage's points have been distributed.
	StageSettled(ctx context.Context, stageID string, recipients []string)
}

// LogNotifier writes every notification to the structured log. It is the
// default implementation; a mail or chat sender can replace it.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that logs deliveries.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) StageStarted(ctx context.Context, projectID, stageID, stageName string, recipients []string) {
	n.logger.InfoContext(ctx, "notify: stage started",
		"project_id", projectID, "stage_id", stageID, "stage_name", stageName, "recipients", len(recipients))
}

func (n *LogNotifier) SubmissionApproved(ctx context.Context, stageID, groupID string, recipients []string) {
	n.logger.InfoContext(ctx, "notify: submission approved",
		"stage_id", stageID, "group_id", groupID, "recipients", len(recipients))
}

func (n *LogNotifier) DeadlineMissed(ctx context.Context, stageID, groupID string, recipients []string) {
	n.logger.InfoContext(ctx, "notify: deadline missed",
		"stage_id", stageID, "group_id", groupID, "recipients", len(recipients))
}

func (n *LogNotifier) DeadlineReminder(ctx context.Context, stageID, groupID string, recipients []string) {
	n.logger.InfoContext(ctx, "notify: deadline reminder",
		"stage_id", stageID, "group_id", groupID, "recipients", len(recipients))
}

func (n *LogNotifier) StageSettled(ctx context.Context, stageID string, recipients []string) {
	n.logger.InfoContext(ctx, "notify: stage settled",
		"stage_id", stageID, "recipients", len(recipients))
}

var _ Notifier = (*LogNotifier)(nil)
