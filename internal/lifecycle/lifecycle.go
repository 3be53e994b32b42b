// Package lifecycle drives stages through pending → active → voting →
// completed.
//
// The patrol sweep applies time-based transitions; every status change is a
// compare-and-set in the store and every side effect is guarded by a
// per-stage marker, so two concurrent sweeps (or a re-run after a crash)
// never double-fire. Manual overrides walk the same forward-only edge set.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/peergrade/peergrade/internal/apperr"
	"github.com/peergrade/peergrade/internal/consensus"
	"github.com/peergrade/peergrade/internal/metrics"
	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/notify"
	"github.com/peergrade/peergrade/internal/readmodel"
	"github.com/peergrade/peergrade/internal/settlement"
	"github.com/peergrade/peergrade/internal/storage"
)

// CapabilityManage is required to force stage transitions.
const CapabilityManage = "manage"

// reminderWindow is how long before a stage's end date reminders start.
const reminderWindow = 24 * time.Hour

// PermissionChecker answers capability questions for manual overrides.
type PermissionChecker interface {
	Can(ctx context.Context, userEmail, projectID, capability string) (bool, error)
}

// Settler commits a stage settlement. Implemented by settlement.Engine.
type Settler interface {
	Settle(ctx context.Context, stageID, operator string) (*settlement.Result, error)
}

// Machine is the stage state machine.
type Machine struct {
	store    storage.Store
	cache    *readmodel.Cache
	notifier notify.Notifier
	settler  Settler
	perms    PermissionChecker
	logger   *slog.Logger
	cfg      consensus.Config
}

// NewMachine wires a stage state machine.
func NewMachine(store storage.Store, cache *readmodel.Cache, notifier notify.Notifier, settler Settler, perms PermissionChecker, logger *slog.Logger, cfg consensus.Config) *Machine {
	return &Machine{
		store:    store,
		cache:    cache,
		notifier: notifier,
		settler:  settler,
		perms:    perms,
		logger:   logger,
		cfg:      cfg,
	}
}

// Sweep advances every unfinished stage that is due at the given time.
// Stages are processed independently: a failure on one is logged and
// counted, and the sweep moves on. Safe to call concurrently or repeatedly
// with the same clock reading.
func (m *Machine) Sweep(ctx context.Context, now time.Time) error {
	stages, err := m.store.ListUnfinishedStages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished stages: %w", err)
	}
	for _, stage := range stages {
		if err := m.sweepStage(ctx, now, stage); err != nil {
			metrics.SweepErrors.Inc()
			m.logger.ErrorContext(ctx, "sweep failed for stage",
				"stage_id", stage.ID, "project_id", stage.ProjectID, "error", err)
		}
	}
	return nil
}

func (m *Machine) sweepStage(ctx context.Context, now time.Time, stage *models.Stage) error {
	ts := now.UnixMilli()

	if stage.Status == models.StageStatusPending && ts >= stage.StartDate {
		applied, err := m.store.TransitionStage(ctx, stage.ID, models.StageStatusPending, models.StageStatusActive, "")
		if err != nil {
			return err
		}
		if applied {
			metrics.SweepTransitions.WithLabelValues(models.StageStatusPending, models.StageStatusActive).Inc()
			m.logger.InfoContext(ctx, "stage activated", "stage_id", stage.ID)
		}
		stage.Status = models.StageStatusActive
	}

	if stage.Status == models.StageStatusActive {
		// Side effects are marker-guarded and re-attempted on every sweep,
		// so a crash between the status write and the effects self-heals.
		if err := m.fireActivationEffects(ctx, stage); err != nil {
			return err
		}
		if ts >= stage.EndDate {
			applied, err := m.store.TransitionStage(ctx, stage.ID, models.StageStatusActive, models.StageStatusVoting, "")
			if err != nil {
				return err
			}
			if applied {
				metrics.SweepTransitions.WithLabelValues(models.StageStatusActive, models.StageStatusVoting).Inc()
				m.logger.InfoContext(ctx, "stage entered voting", "stage_id", stage.ID)
			}
			stage.Status = models.StageStatusVoting
		} else if stage.EndDate-ts <= reminderWindow.Milliseconds() {
			if err := m.fireReminder(ctx, now, stage); err != nil {
				return err
			}
		}
	}

	if stage.Status == models.StageStatusVoting {
		if err := m.fireVotingEffects(ctx, stage); err != nil {
			return err
		}
		return m.maybeComplete(ctx, now, stage)
	}
	return nil
}

// fireActivationEffects notifies members of the stage start, once.
func (m *Machine) fireActivationEffects(ctx context.Context, stage *models.Stage) error {
	marker := transitionMarker(models.StageStatusPending, models.StageStatusActive)
	fresh, err := m.store.TryMarkStage(ctx, stage.ID, marker)
	if err != nil || !fresh {
		return err
	}
	groups, err := m.cache.Groups(ctx, stage.ProjectID)
	if err != nil {
		return err
	}
	var recipients []string
	for _, g := range groups {
		if g.Active {
			recipients = append(recipients, g.ActiveMemberEmails()...)
		}
	}
	m.notifier.StageStarted(ctx, stage.ProjectID, stage.ID, stage.Name, recipients)
	return nil
}

// fireVotingEffects auto-approves submissions and flags groups that missed
// the deadline, once.
func (m *Machine) fireVotingEffects(ctx context.Context, stage *models.Stage) error {
	marker := transitionMarker(models.StageStatusActive, models.StageStatusVoting)
	fresh, err := m.store.TryMarkStage(ctx, stage.ID, marker)
	if err != nil || !fresh {
		return err
	}
	groups, err := m.cache.Groups(ctx, stage.ProjectID)
	if err != nil {
		return err
	}
	subs, err := m.cache.Submissions(ctx, stage.ID)
	if err != nil {
		return err
	}
	latest := make(map[string]*models.Submission)
	for _, s := range subs {
		if s.Status == models.SubmissionStatusWithdrawn {
			continue
		}
		if cur, ok := latest[s.GroupID]; !ok || s.SubmittedTime > cur.SubmittedTime {
			latest[s.GroupID] = s
		}
	}
	for _, g := range groups {
		if !g.Active {
			continue
		}
		sub, ok := latest[g.ID]
		if !ok {
			m.notifier.DeadlineMissed(ctx, stage.ID, g.ID, g.ActiveMemberEmails())
			continue
		}
		if sub.Status == models.SubmissionStatusSubmitted {
			if err := m.store.ApproveSubmission(ctx, sub.ID); err != nil {
				return err
			}
		}
		m.notifier.SubmissionApproved(ctx, stage.ID, g.ID, g.ActiveMemberEmails())
	}
	m.cache.Invalidate(stage.ProjectID, stage.ID)
	return nil
}

// fireReminder warns groups the submission window closes soon, at most once
// per stage per calendar day.
func (m *Machine) fireReminder(ctx context.Context, now time.Time, stage *models.Stage) error {
	marker := "reminder:" + now.UTC().Format("2006-01-02")
	fresh, err := m.store.TryMarkStage(ctx, stage.ID, marker)
	if err != nil || !fresh {
		return err
	}
	groups, err := m.cache.Groups(ctx, stage.ProjectID)
	if err != nil {
		return err
	}
	subs, err := m.cache.Submissions(ctx, stage.ID)
	if err != nil {
		return err
	}
	submitted := make(map[string]bool)
	for _, s := range subs {
		if s.Status != models.SubmissionStatusWithdrawn {
			submitted[s.GroupID] = true
		}
	}
	for _, g := range groups {
		if g.Active && !submitted[g.ID] {
			m.notifier.DeadlineReminder(ctx, stage.ID, g.ID, g.ActiveMemberEmails())
			metrics.Reminders.Inc()
		}
	}
	m.logger.InfoContext(ctx, "deadline reminder fired", "stage_id", stage.ID, "marker", marker)
	return nil
}

// maybeComplete settles a voting stage when its consensus deadline has
// passed or every group's consensus is resolved. Settlement itself flips
// the stage to completed; at the deadline a stage that cannot settle (no
// consensus anywhere, or no distributable members) closes unsettled for an
// operator to resolve.
func (m *Machine) maybeComplete(ctx context.Context, now time.Time, stage *models.Stage) error {
	due := stage.ConsensusDeadline > 0 && now.UnixMilli() >= stage.ConsensusDeadline
	if !due {
		resolved, err := m.allGroupsResolved(ctx, stage)
		if err != nil || !resolved {
			return err
		}
	}

	_, err := m.settler.Settle(ctx, stage.ID, settlement.SystemOperator)
	if err == nil {
		metrics.SweepTransitions.WithLabelValues(models.StageStatusVoting, models.StageStatusCompleted).Inc()
		return nil
	}
	code := apperr.CodeOf(err)
	if code == apperr.CodeAlreadySettled {
		return nil
	}
	if due && (code == apperr.CodeNoConsensus || code == apperr.CodeInvalidDistributionInput) {
		applied, terr := m.store.TransitionStage(ctx, stage.ID, models.StageStatusVoting, models.StageStatusCompleted, "")
		if terr != nil {
			return terr
		}
		if applied {
			metrics.SweepTransitions.WithLabelValues(models.StageStatusVoting, models.StageStatusCompleted).Inc()
			m.logger.WarnContext(ctx, "stage closed unsettled at consensus deadline",
				"stage_id", stage.ID, "reason", err.Error())
		}
		return nil
	}
	return err
}

// allGroupsResolved reports whether every active group has either reached
// consensus or can never reach it (no active members to vote).
func (m *Machine) allGroupsResolved(ctx context.Context, stage *models.Stage) (bool, error) {
	groups, err := m.cache.Groups(ctx, stage.ProjectID)
	if err != nil {
		return false, err
	}
	proposals, err := m.store.ListProposals(ctx, stage.ID)
	if err != nil {
		return false, err
	}
	votes, err := m.store.ListVotes(ctx, stage.ID)
	if err != nil {
		return false, err
	}
	byGroup := make(map[string][]*models.RankingProposal)
	for _, p := range proposals {
		byGroup[p.GroupID] = append(byGroup[p.GroupID], p)
	}
	anyReached := false
	for _, g := range groups {
		if !g.Active {
			continue
		}
		oc := consensus.ResolveGroup(g, byGroup[g.ID], votes, m.cfg)
		if oc.ActiveMembers == 0 {
			continue
		}
		if !oc.Reached {
			return false, nil
		}
		anyReached = true
	}
	return anyReached, nil
}

// ForceTransition applies a manual stage transition. The operator needs the
// manage capability on the stage's project, and the target must be a valid
// forward edge from the stage's current status.
func (m *Machine) ForceTransition(ctx context.Context, stageID, target, operator string) (*models.Stage, error) {
	stage, err := m.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	ok, err := m.perms.Can(ctx, operator, stage.ProjectID, CapabilityManage)
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}
	if !ok {
		return nil, apperr.InsufficientPermission(operator, CapabilityManage)
	}
	if !models.CanTransition(stage.Status, target) {
		return nil, apperr.InvalidTransition(stage.Status, target)
	}

	applied, err := m.store.TransitionStage(ctx, stageID, stage.Status, target, operator)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Somebody raced us; report against the fresh status.
		fresh, gerr := m.store.GetStage(ctx, stageID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, apperr.InvalidTransition(fresh.Status, target)
	}
	metrics.ForcedTransitions.Inc()
	m.logger.InfoContext(ctx, "stage transition forced",
		"stage_id", stageID, "from", stage.Status, "to", target, "operator", operator)

	// A forced transition fires the same marker-guarded side effects the
	// sweep would.
	stage.Status = target
	switch target {
	case models.StageStatusActive:
		if err := m.fireActivationEffects(ctx, stage); err != nil {
			m.logger.ErrorContext(ctx, "forced transition side effects failed",
				"stage_id", stageID, "error", err)
		}
	case models.StageStatusVoting:
		if err := m.fireVotingEffects(ctx, stage); err != nil {
			m.logger.ErrorContext(ctx, "forced transition side effects failed",
				"stage_id", stageID, "error", err)
		}
	}
	return m.store.GetStage(ctx, stageID)
}

func transitionMarker(from, to string) string {
	return "transition:" + from + "->" + to
}
