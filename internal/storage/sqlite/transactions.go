package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/storage"
)

const txColumns = `transaction_id, project_id, user_email, amount, transaction_type,
	source, timestamp, stage_id, settlement_id, related_submission_id,
	related_comment_id, metadata`

// AppendTransaction writes one ledger transaction. Transactions are
// append-only: the store has no update or delete path for this table.
func (s *SQLiteStore) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	fillTransactionDefaults(tx)
	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (`+txColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.ProjectID, tx.UserEmail, tx.Amount, tx.Type,
		tx.Source, tx.Timestamp, nullIfEmpty(tx.StageID), nullIfEmpty(tx.SettlementID),
		nullIfEmpty(tx.RelatedSubmissionID), nullIfEmpty(tx.RelatedCommentID), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ListTransactions returns a user's transactions in ascending time order.
func (s *SQLiteStore) ListTransactions(ctx context.Context, projectID, userEmail string, f storage.TransactionFilter) ([]*models.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
		 WHERE project_id = ? AND user_email = ?`
	args := []any{projectID, userEmail}
	query, args = applyTxFilter(query, args, f)
	query += " ORDER BY timestamp ASC, transaction_id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListSettlementTransactions returns every transaction in a settlement
// batch, in insertion time order.
func (s *SQLiteStore) ListSettlementTransactions(ctx context.Context, settlementID string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions
		 WHERE settlement_id = ?
		 ORDER BY timestamp ASC, transaction_id ASC`,
		settlementID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// SumTransactions returns the sum of matching amounts. Balances are always
// derived this way; no balance is stored anywhere.
func (s *SQLiteStore) SumTransactions(ctx context.Context, projectID, userEmail string, f storage.TransactionFilter) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE project_id = ? AND user_email = ?`
	args := []any{projectID, userEmail}
	query, args = applyTxFilter(query, args, f)

	var sum int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

func applyTxFilter(query string, args []any, f storage.TransactionFilter) (string, []any) {
	if f.StageID != "" {
		query += " AND stage_id = ?"
		args = append(args, f.StageID)
	}
	if f.SettlementID != "" {
		query += " AND settlement_id = ?"
		args = append(args, f.SettlementID)
	}
	if f.Type != "" {
		query += " AND transaction_type = ?"
		args = append(args, f.Type)
	}
	return query, args
}

func fillTransactionDefaults(tx *models.Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = time.Now().UnixMilli()
	}
}

func marshalMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}
	return string(b), nil
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var stageID, settlementID, submissionID, commentID, metadata sql.NullString
	if err := rows.Scan(
		&tx.ID, &tx.ProjectID, &tx.UserEmail, &tx.Amount, &tx.Type,
		&tx.Source, &tx.Timestamp, &stageID, &settlementID,
		&submissionID, &commentID, &metadata,
	); err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.StageID = stageID.String
	tx.SettlementID = settlementID.String
	tx.RelatedSubmissionID = submissionID.String
	tx.RelatedCommentID = commentID.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
		}
	}
	return tx, nil
}
