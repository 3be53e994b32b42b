package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peergrade/peergrade/internal/models"
)

// CreateGroup persists a group with its members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g *models.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	active := 0
	if g.Active {
		active = 1
	}
	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO groups (group_id, project_id, group_name, active) VALUES (?, ?, ?, ?)`,
		g.ID, g.ProjectID, g.Name, active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	for _, m := range g.Members {
		memberActive := 0
		if m.Active {
			memberActive = 1
		}
		_, err = dbTx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_email, active) VALUES (?, ?, ?)`,
			g.ID, m.UserEmail, memberActive,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}
	return nil
}

// ListGroups returns a project's groups with members, ordered by name.
func (s *SQLiteStore) ListGroups(ctx context.Context, projectID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, project_id, group_name, active FROM groups
		 WHERE project_id = ? ORDER BY group_name`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g := &models.Group{}
		var active int
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.Name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Active = active == 1
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	for _, g := range groups {
		memberRows, err := s.db.QueryContext(ctx,
			`SELECT user_email, active FROM group_members
			 WHERE group_id = ? ORDER BY user_email`,
			g.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list group members: %w", err)
		}
		for memberRows.Next() {
			var m models.GroupMember
			var memberActive int
			if err := memberRows.Scan(&m.UserEmail, &memberActive); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("failed to scan group member: %w", err)
			}
			m.Active = memberActive == 1
			g.Members = append(g.Members, m)
		}
		memberRows.Close()
		if err := memberRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate group members: %w", err)
		}
	}
	return groups, nil
}

// CreateSubmission persists a group's submission for a stage.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.SubmittedTime == 0 {
		sub.SubmittedTime = time.Now().UnixMilli()
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionStatusSubmitted
	}
	participation, err := json.Marshal(sub.Participation)
	if err != nil {
		return fmt.Errorf("failed to marshal participation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (submission_id, stage_id, group_id, status, participation, submitted_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.StageID, sub.GroupID, sub.Status, string(participation), sub.SubmittedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// ListSubmissions returns a stage's submissions.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, stageID string) ([]*models.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT submission_id, stage_id, group_id, status, participation, submitted_time
		 FROM submissions WHERE stage_id = ? ORDER BY submitted_time ASC`,
		stageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		sub := &models.Submission{}
		var participation string
		if err := rows.Scan(&sub.ID, &sub.StageID, &sub.GroupID, &sub.Status, &participation, &sub.SubmittedTime); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(participation), &sub.Participation); err != nil {
			return nil, fmt.Errorf("failed to decode participation for submission %s: %w", sub.ID, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return subs, nil
}

// ApproveSubmission marks a submitted submission approved.
func (s *SQLiteStore) ApproveSubmission(ctx context.Context, submissionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ? WHERE submission_id = ? AND status = ?`,
		models.SubmissionStatusApproved, submissionID, models.SubmissionStatusSubmitted,
	)
	if err != nil {
		return fmt.Errorf("failed to approve submission: %w", err)
	}
	return nil
}
