// Package ledger derives balances from the append-only transaction log.
//
// Balances are never stored. The current balance of a user is always the
// sum of their transaction amounts, so a reversal (an inverse transaction)
// restores the balance exactly without any mutation of history.
package ledger

import (
	"context"
	"fmt"

	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/storage"
)

// Service answers balance and history queries over the transaction log.
type Service struct {
	store storage.Store
}

// NewService returns a ledger service backed by the given store.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Balance returns a user's current point balance in a project.
// A user with no transactions has balance zero.
func (s *Service) Balance(ctx context.Context, projectID, userEmail string) (int64, error) {
	sum, err := s.store.SumTransactions(ctx, projectID, userEmail, storage.TransactionFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions for %s: %w", userEmail, err)
	}
	return sum, nil
}

// History returns a user's transactions in ascending time order, each
// paired with the running balance after it. The final entry's running
// balance equals Balance.
func (s *Service) History(ctx context.Context, projectID, userEmail string, f storage.TransactionFilter) ([]*models.LedgerEntry, error) {
	txs, err := s.store.ListTransactions(ctx, projectID, userEmail, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", userEmail, err)
	}
	entries := make([]*models.LedgerEntry, 0, len(txs))
	var running int64
	for _, tx := range txs {
		running += tx.Amount
		entries = append(entries, &models.LedgerEntry{
			Transaction:    *tx,
			RunningBalance: running,
		})
	}
	return entries, nil
}

// StageTotal returns the net points a user received from one stage,
// including any reversals.
func (s *Service) StageTotal(ctx context.Context, projectID, userEmail, stageID string) (int64, error) {
	sum, err := s.store.SumTransactions(ctx, projectID, userEmail, storage.TransactionFilter{StageID: stageID})
	if err != nil {
		return 0, fmt.Errorf("failed to sum stage transactions: %w", err)
	}
	return sum, nil
}
