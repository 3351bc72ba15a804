package storage

import (
	"context"
	"testing"
	"time"

	"finsync/internal/core"
)

func TestOutboxOneEntryPerTarget(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tx := testTransaction(2, "200.50")
	create := core.OutboxEntry{
		TargetID:    2,
		Entity:      core.EntityTransaction,
		Op:          core.OpCreate,
		Transaction: &tx,
		CreatedAt:   time.Date(2025, 8, 10, 10, 0, 0, 0, time.UTC),
	}
	if err := repo.SaveEntry(ctx, create); err != nil {
		t.Fatalf("save create: %v", err)
	}

	// A later failed update on the same id replaces the create entry
	updatedTx := testTransaction(2, "300.00")
	update := create
	update.Op = core.OpUpdate
	update.Transaction = &updatedTx
	update.CreatedAt = create.CreatedAt.Add(time.Minute)
	if err := repo.SaveEntry(ctx, update); err != nil {
		t.Fatalf("save update: %v", err)
	}

	pending, err := repo.FetchPending(ctx)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly one entry for id 2, got %d", len(pending))
	}
	if pending[0].Op != core.OpUpdate {
		t.Errorf("entry should reflect the latest operation, got %s", pending[0].Op)
	}
	if pending[0].Transaction == nil || !pending[0].Transaction.Amount.Equal(updatedTx.Amount) {
		t.Errorf("snapshot should be the latest one: %+v", pending[0].Transaction)
	}
}

func TestOutboxFetchOrderAndDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 10, 10, 0, 0, 0, time.UTC)
	for i, id := range []int64{7, 3, 5} {
		tx := testTransaction(id, "10")
		entry := core.OutboxEntry{
			TargetID:    id,
			Entity:      core.EntityTransaction,
			Op:          core.OpCreate,
			Transaction: &tx,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveEntry(ctx, entry); err != nil {
			t.Fatalf("save %d: %v", id, err)
		}
	}

	pending, err := repo.FetchPending(ctx)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(pending))
	}
	if pending[0].TargetID != 7 || pending[1].TargetID != 3 || pending[2].TargetID != 5 {
		t.Errorf("expected oldest-first order, got %d,%d,%d",
			pending[0].TargetID, pending[1].TargetID, pending[2].TargetID)
	}

	if err := repo.DeleteEntry(ctx, core.EntityTransaction, 3); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	pending, err = repo.FetchPending(ctx)
	if err != nil {
		t.Fatalf("fetch after delete: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 entries after delete, got %d", len(pending))
	}

	// Deleting an absent entry is a no-op
	if err := repo.DeleteEntry(ctx, core.EntityTransaction, 42); err != nil {
		t.Errorf("delete of absent entry should not fail: %v", err)
	}
}

func TestOutboxAccountEntry(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	account := core.Account{ID: 1, Name: "Main", Currency: "EUR",
		Balance: testTransaction(0, "150.75").Amount}
	entry := core.OutboxEntry{
		TargetID: 1,
		Entity:   core.EntityAccount,
		Op:       core.OpUpdate,
		Account:  &account,
	}
	if err := repo.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("save account entry: %v", err)
	}

	pending, err := repo.FetchPending(ctx)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(pending))
	}
	got := pending[0]
	if got.Entity != core.EntityAccount || got.Account == nil {
		t.Fatalf("account snapshot missing: %+v", got)
	}
	if !got.Account.Balance.Equal(account.Balance) || got.Account.Currency != "EUR" {
		t.Errorf("snapshot mismatch: %+v", got.Account)
	}
}
