package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peergrade/peergrade/internal/apperr"
	"github.com/peergrade/peergrade/internal/models"
)

const stageColumns = `stage_id, project_id, stage_name, stage_order, status,
	start_date, end_date, consensus_deadline, report_reward_pool,
	comment_reward_pool, final_rankings, settled_time, forced_by, forced_time`

// CreateStage persists a new stage.
func (s *SQLiteStore) CreateStage(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.New().String()
	}
	if stage.Status == "" {
		stage.Status = models.StageStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (`+stageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stage.ID, stage.ProjectID, stage.Name, stage.Order, stage.Status,
		stage.StartDate, stage.EndDate, nullIfZero(stage.ConsensusDeadline),
		stage.ReportRewardPool, stage.CommentRewardPool,
		nullIfEmpty(stage.FinalRankings), nullIfZero(stage.SettledTime),
		nullIfEmpty(stage.ForcedBy), nullIfZero(stage.ForcedTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stage: %w", err)
	}
	return nil
}

// GetStage retrieves a stage by ID.
func (s *SQLiteStore) GetStage(ctx context.Context, stageID string) (*models.Stage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE stage_id = ?`, stageID)
	stage, err := scanStage(row)
	if err == sql.ErrNoRows {
		return nil, apperr.StageNotFound(stageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return stage, nil
}

// ListUnfinishedStages returns every stage not yet completed, ordered by
// project then stage order, for the patrol sweep.
func (s *SQLiteStore) ListUnfinishedStages(ctx context.Context) ([]*models.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages
		 WHERE status != ?
		 ORDER BY project_id, stage_order`,
		models.StageStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished stages: %w", err)
	}
	defer rows.Close()

	var stages []*models.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stages: %w", err)
	}
	return stages, nil
}

// TransitionStage moves a stage from fromStatus to toStatus with a
// compare-and-set on the current status. Returns false when the stage was
// not in fromStatus, which is how concurrent sweeps lose the race cleanly.
func (s *SQLiteStore) TransitionStage(ctx context.Context, stageID, fromStatus, toStatus, forcedBy string) (bool, error) {
	var res sql.Result
	var err error
	if forcedBy != "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE stages SET status = ?, forced_by = ?, forced_time = ?
			 WHERE stage_id = ? AND status = ?`,
			toStatus, forcedBy, time.Now().UnixMilli(), stageID, fromStatus,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE stages SET status = ? WHERE stage_id = ? AND status = ?`,
			toStatus, stageID, fromStatus,
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to transition stage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// TryMarkStage records an idempotency marker for a stage. Returns true if
// the marker was newly written, false if it already existed.
func (s *SQLiteStore) TryMarkStage(ctx context.Context, stageID, marker string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_markers (stage_id, marker, created_time) VALUES (?, ?, ?)`,
		stageID, marker, time.Now().UnixMilli(),
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark stage: %w", err)
	}
	return true, nil
}

func scanStage(row rowScanner) (*models.Stage, error) {
	stage := &models.Stage{}
	var deadline, settledTime, forcedTime sql.NullInt64
	var finalRankings, forcedBy sql.NullString
	if err := row.Scan(
		&stage.ID, &stage.ProjectID, &stage.Name, &stage.Order, &stage.Status,
		&stage.StartDate, &stage.EndDate, &deadline, &stage.ReportRewardPool,
		&stage.CommentRewardPool, &finalRankings, &settledTime, &forcedBy, &forcedTime,
	); err != nil {
		return nil, err
	}
	stage.ConsensusDeadline = deadline.Int64
	stage.FinalRankings = finalRankings.String
	stage.SettledTime = settledTime.Int64
	stage.ForcedBy = forcedBy.String
	stage.ForcedTime = forcedTime.Int64
	return stage, nil
}
