package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peergrade/peergrade/internal/models"
)

// CreateProposal persists a ranking proposal.
func (s *SQLiteStore) CreateProposal(ctx context.Context, p *models.RankingProposal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedTime == 0 {
		p.CreatedTime = time.Now().UnixMilli()
	}
	ranking, err := json.Marshal(p.Ranking)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ranking_proposals (proposal_id, project_id, stage_id, group_id, proposer_email, ranking, created_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.StageID, p.GroupID, p.ProposerEmail, string(ranking), p.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

// ListProposals returns a stage's proposals in creation order.
func (s *SQLiteStore) ListProposals(ctx context.Context, stageID string) ([]*models.RankingProposal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT proposal_id, project_id, stage_id, group_id, proposer_email, ranking, created_time
		 FROM ranking_proposals WHERE stage_id = ? ORDER BY created_time ASC`,
		stageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*models.RankingProposal
	for rows.Next() {
		p := &models.RankingProposal{}
		var ranking string
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.StageID, &p.GroupID, &p.ProposerEmail, &ranking, &p.CreatedTime); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		if err := json.Unmarshal([]byte(ranking), &p.Ranking); err != nil {
			return nil, fmt.Errorf("failed to decode ranking for proposal %s: %w", p.ID, err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate proposals: %w", err)
	}
	return proposals, nil
}

// UpsertVote records a member's vote on a proposal; re-voting replaces the
// previous record for (proposal, voter).
func (s *SQLiteStore) UpsertVote(ctx context.Context, v *models.ProposalVote) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Timestamp == 0 {
		v.Timestamp = time.Now().UnixMilli()
	}
	approve := 0
	if v.Approve {
		approve = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposal_votes (vote_id, proposal_id, voter_email, approve, timestamp)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(proposal_id, voter_email)
		 DO UPDATE SET approve = excluded.approve, timestamp = excluded.timestamp`,
		v.ID, v.ProposalID, v.VoterEmail, approve, v.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

// ListVotes returns all votes on a stage's proposals.
func (s *SQLiteStore) ListVotes(ctx context.Context, stageID string) ([]*models.ProposalVote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.vote_id, v.proposal_id, v.voter_email, v.approve, v.timestamp
		 FROM proposal_votes v
		 JOIN ranking_proposals p ON p.proposal_id = v.proposal_id
		 WHERE p.stage_id = ?`,
		stageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.ProposalVote
	for rows.Next() {
		v := &models.ProposalVote{}
		var approve int
		if err := rows.Scan(&v.ID, &v.ProposalID, &v.VoterEmail, &approve, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		v.Approve = approve == 1
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}
	return votes, nil
}

// AddTeacherRanking appends one teacher ranking record. History is kept;
// readers pick the latest per (teacher, group).
func (s *SQLiteStore) AddTeacherRanking(ctx context.Context, r *models.TeacherRanking) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedTime == 0 {
		r.CreatedTime = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teacher_rankings (id, project_id, stage_id, teacher_email, group_id, rank, created_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.StageID, r.TeacherEmail, r.GroupID, r.Rank, r.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert teacher ranking: %w", err)
	}
	return nil
}

// ListTeacherRankings returns a stage's full teacher ranking history.
func (s *SQLiteStore) ListTeacherRankings(ctx context.Context, stageID string) ([]*models.TeacherRanking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, stage_id, teacher_email, group_id, rank, created_time
		 FROM teacher_rankings WHERE stage_id = ? ORDER BY created_time ASC`,
		stageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list teacher rankings: %w", err)
	}
	defer rows.Close()

	var rankings []*models.TeacherRanking
	for rows.Next() {
		r := &models.TeacherRanking{}
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.StageID, &r.TeacherEmail, &r.GroupID, &r.Rank, &r.CreatedTime); err != nil {
			return nil, fmt.Errorf("failed to scan teacher ranking: %w", err)
		}
		rankings = append(rankings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teacher rankings: %w", err)
	}
	return rankings, nil
}
