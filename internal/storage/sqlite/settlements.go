package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peergrade/peergrade/internal/apperr"
	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/storage"
)

const settlementColumns = `settlement_id, project_id, stage_id, settlement_type,
	settlement_time, operator_email, total_reward_distributed, participant_count,
	status, reversed_time, reversed_by, reversed_reason, original_settlement_id`

// GetSettlement retrieves a settlement by ID.
func (s *SQLiteStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE settlement_id = ?`,
		settlementID,
	)
	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, apperr.SettlementNotFound(settlementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return st, nil
}

// ListSettlements returns a project's settlement history, newest first.
func (s *SQLiteStore) ListSettlements(ctx context.Context, projectID string, f storage.SettlementFilter) ([]*models.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE project_id = ?`
	args := []any{projectID}
	if f.StageID != "" {
		query += " AND stage_id = ?"
		args = append(args, f.StageID)
	}
	if f.Type != "" {
		query += " AND settlement_type = ?"
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY settlement_time DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

// CreateSettlementBatch atomically writes the settlement record, its member
// transactions, and marks the stage completed with its final rankings.
// The partial unique index on active stage settlements makes a concurrent
// or retried settle fail here with apperr.AlreadySettled, regardless of
// what the caller read beforehand.
func (s *SQLiteStore) CreateSettlementBatch(ctx context.Context, st *models.Settlement, txs []*models.Transaction, finalRankings string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.SettlementTime == 0 {
		st.SettlementTime = time.Now().UnixMilli()
	}
	if st.Status == "" {
		st.Status = models.SettlementStatusActive
	}

	if err := insertSettlement(ctx, dbTx, st); err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadySettled(st.StageID)
		}
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	for _, tx := range txs {
		tx.SettlementID = st.ID
		if err := insertTransactionTx(ctx, dbTx, tx); err != nil {
			return fmt.Errorf("failed to insert settlement transaction: %w", err)
		}
	}

	res, err := dbTx.ExecContext(ctx,
		`UPDATE stages
		 SET status = ?, final_rankings = ?, settled_time = ?
		 WHERE stage_id = ? AND status = ?`,
		models.StageStatusCompleted, finalRankings, st.SettlementTime,
		st.StageID, models.StageStatusVoting,
	)
	if err != nil {
		return fmt.Errorf("failed to complete stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Stage left voting under our feet; abort the whole batch.
		return apperr.New(apperr.CodeInvalidTransition,
			"stage %s is no longer in voting status", st.StageID)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement batch: %w", err)
	}
	return nil
}

// ReverseSettlementBatch atomically reverses a settlement: CAS-flips the
// original to reversed, inserts the reversal settlement (guarded by the
// unique index on original_settlement_id) and its inverse transactions, and
// rolls the stage back to voting with cached rankings cleared.
func (s *SQLiteStore) ReverseSettlementBatch(ctx context.Context, original, reversal *models.Settlement, txs []*models.Transaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE settlements
		 SET status = ?, reversed_time = ?, reversed_by = ?, reversed_reason = ?
		 WHERE settlement_id = ? AND status = ?`,
		models.SettlementStatusReversed, original.ReversedTime,
		original.ReversedBy, original.ReversedReason,
		original.ID, models.SettlementStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to flip settlement status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.AlreadyReversed(original.ID)
	}

	if reversal.ID == "" {
		reversal.ID = uuid.New().String()
	}
	if err := insertSettlement(ctx, dbTx, reversal); err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyReversed(original.ID)
		}
		return fmt.Errorf("failed to insert reversal settlement: %w", err)
	}

	for _, tx := range txs {
		tx.SettlementID = reversal.ID
		if err := insertTransactionTx(ctx, dbTx, tx); err != nil {
			return fmt.Errorf("failed to insert reversal transaction: %w", err)
		}
	}

	if original.Type == models.SettlementTypeStage {
		_, err = dbTx.ExecContext(ctx,
			`UPDATE stages
			 SET status = ?, final_rankings = NULL, settled_time = NULL
			 WHERE stage_id = ?`,
			models.StageStatusVoting, original.StageID,
		)
		if err != nil {
			return fmt.Errorf("failed to roll stage back to voting: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reversal batch: %w", err)
	}
	return nil
}

func insertSettlement(ctx context.Context, dbTx *sql.Tx, st *models.Settlement) error {
	_, err := dbTx.ExecContext(ctx,
		`INSERT INTO settlements (`+settlementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ProjectID, st.StageID, st.Type,
		st.SettlementTime, st.OperatorEmail, st.TotalRewardDistributed, st.ParticipantCount,
		st.Status, nullIfZero(st.ReversedTime), nullIfEmpty(st.ReversedBy),
		nullIfEmpty(st.ReversedReason), nullIfEmpty(st.OriginalSettlementID),
	)
	return err
}

func insertTransactionTx(ctx context.Context, dbTx *sql.Tx, tx *models.Transaction) error {
	fillTransactionDefaults(tx)
	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}
	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (`+txColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.ProjectID, tx.UserEmail, tx.Amount, tx.Type,
		tx.Source, tx.Timestamp, nullIfEmpty(tx.StageID), nullIfEmpty(tx.SettlementID),
		nullIfEmpty(tx.RelatedSubmissionID), nullIfEmpty(tx.RelatedCommentID), metadata,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*models.Settlement, error) {
	st := &models.Settlement{}
	var reversedTime sql.NullInt64
	var reversedBy, reversedReason, originalID sql.NullString
	if err := row.Scan(
		&st.ID, &st.ProjectID, &st.StageID, &st.Type,
		&st.SettlementTime, &st.OperatorEmail, &st.TotalRewardDistributed, &st.ParticipantCount,
		&st.Status, &reversedTime, &reversedBy, &reversedReason, &originalID,
	); err != nil {
		return nil, err
	}
	st.ReversedTime = reversedTime.Int64
	st.ReversedBy = reversedBy.String
	st.ReversedReason = reversedReason.String
	st.OriginalSettlementID = originalID.String
	return st, nil
}
