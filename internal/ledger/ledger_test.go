package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/storage"
	"github.com/peergrade/peergrade/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "peergrade-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

func mustAppend(t *testing.T, store *sqlite.SQLiteStore, tx *models.Transaction) {
	t.Helper()
	if err := store.AppendTransaction(context.Background(), tx); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
}

func TestBalanceAndHistory(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// An award, a second award from another stage, then a reversal of the
	// first. Timestamps fix the history order.
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "alice@x", Amount: 240,
		Type: models.TxTypeStageSettlement, StageID: "s1", Timestamp: 1000,
	})
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "alice@x", Amount: 100,
		Type: models.TxTypeStageSettlement, StageID: "s2", Timestamp: 2000,
	})
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "alice@x", Amount: -240,
		Type: models.TxTypeSettlementReversal, StageID: "s1", Timestamp: 3000,
	})
	// Another user and another project must not bleed in.
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "bob@x", Amount: 50,
		Type: models.TxTypeStageSettlement, StageID: "s1", Timestamp: 1500,
	})
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p2", UserEmail: "alice@x", Amount: 999,
		Type: models.TxTypeManualAward, Timestamp: 1500,
	})

	balance, err := svc.Balance(ctx, "p1", "alice@x")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}

	entries, err := svc.History(ctx, "p1", "alice@x", storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	wantRunning := []int64{240, 340, 100}
	for i, e := range entries {
		if e.RunningBalance != wantRunning[i] {
			t.Errorf("entry %d running balance = %d, want %d", i, e.RunningBalance, wantRunning[i])
		}
	}
	if last := entries[len(entries)-1]; last.RunningBalance != balance {
		t.Errorf("final running balance %d does not match Balance %d", last.RunningBalance, balance)
	}

	t.Run("stage filter", func(t *testing.T) {
		entries, err := svc.History(ctx, "p1", "alice@x", storage.TransactionFilter{StageID: "s1"})
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
		if entries[1].RunningBalance != 0 {
			t.Errorf("stage-filtered running balance = %d, want 0", entries[1].RunningBalance)
		}
	})
}

func TestBalanceUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	balance, err := svc.Balance(context.Background(), "p1", "nobody@x")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	entries, err := svc.History(context.Background(), "p1", "nobody@x", storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestStageTotal(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "alice@x", Amount: 300,
		Type: models.TxTypeStageSettlement, StageID: "s1", Timestamp: 1000,
	})
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "alice@x", Amount: -300,
		Type: models.TxTypeSettlementReversal, StageID: "s1", Timestamp: 2000,
	})
	mustAppend(t, store, &models.Transaction{
		ProjectID: "p1", UserEmail: "alice@x", Amount: 120,
		Type: models.TxTypeStageSettlement, StageID: "s1", Timestamp: 3000,
	})

	total, err := svc.StageTotal(ctx, "p1", "alice@x", "s1")
	if err != nil {
		t.Fatalf("StageTotal failed: %v", err)
	}
	if total != 120 {
		t.Errorf("stage total = %d, want 120", total)
	}
}
