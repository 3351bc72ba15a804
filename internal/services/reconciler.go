// Package services orchestrates the offline-first flow: try the remote
// service, fall back to the local store plus the outbox, and replay
// pending operations whenever the device looks reachable again.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finsync/internal/core"
	"finsync/internal/gateway"
	applog "finsync/internal/log"
	"finsync/internal/storage"
)

// Reconciler drains the outbox against the remote gateway, one entry at
// a time. It is invoked at the start of every read path so a device
// coming back online self-heals opportunistically.
type Reconciler struct {
	store        *storage.Repository
	accounts     gateway.AccountGateway
	transactions gateway.TransactionGateway
}

func NewReconciler(store *storage.Repository, accounts gateway.AccountGateway, transactions gateway.TransactionGateway) *Reconciler {
	return &Reconciler{
		store:        store,
		accounts:     accounts,
		transactions: transactions,
	}
}

// Reconcile replays every pending entry. Entries that succeed are
// deleted; entries that fail stay queued for the next opportunity. One
// stuck entry never blocks the others, and no error is returned: the
// caller's own operation must not fail because history replay is
// incomplete.
func (r *Reconciler) Reconcile(ctx context.Context) {
	entries, err := r.store.FetchPending(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read outbox, skipping reconciliation", applog.FieldError, err)
		return
	}
	if len(entries) == 0 {
		return
	}

	slog.InfoContext(ctx, "Replaying pending operations", applog.FieldPending, len(entries))

	replayed := 0
	for _, entry := range entries {
		if err := r.replay(ctx, entry); err != nil {
			slog.WarnContext(ctx, "Replay failed, keeping entry",
				applog.FieldTargetID, entry.TargetID, applog.FieldEntity, entry.Entity,
				applog.FieldOperation, entry.Op, applog.FieldError, err)
			continue
		}
		if err := r.store.DeleteEntry(ctx, entry.Entity, entry.TargetID); err != nil {
			slog.ErrorContext(ctx, "Failed to clear replayed outbox entry",
				applog.FieldTargetID, entry.TargetID, applog.FieldError, err)
			continue
		}
		replayed++
	}

	if replayed > 0 {
		slog.InfoContext(ctx, "Reconciliation finished",
			"replayed", replayed, "remaining", len(entries)-replayed)
	}
}

// replay pushes one entry to the remote service. Replays are idempotent
// by contract: a create the remote already has, or a delete/update of a
// record the remote no longer has, counts as success.
func (r *Reconciler) replay(ctx context.Context, entry core.OutboxEntry) error {
	var err error
	switch entry.Entity {
	case core.EntityTransaction:
		err = r.replayTransaction(ctx, entry)
	case core.EntityAccount:
		if entry.Account == nil {
			return errors.New("account entry without snapshot")
		}
		err = r.accounts.UpdateAccount(ctx, *entry.Account)
	default:
		return fmt.Errorf("unknown entity kind %q", entry.Entity)
	}

	if settled, reason := settledRemotely(entry.Op, err); settled {
		slog.InfoContext(ctx, "Replay settled without effect",
			applog.FieldTargetID, entry.TargetID, applog.FieldOperation, entry.Op, "reason", reason)
		return nil
	}
	return err
}

func (r *Reconciler) replayTransaction(ctx context.Context, entry core.OutboxEntry) error {
	if entry.Op != core.OpDelete && entry.Transaction == nil {
		return errors.New("transaction entry without snapshot")
	}
	switch entry.Op {
	case core.OpCreate:
		return r.transactions.CreateTransaction(ctx, *entry.Transaction)
	case core.OpUpdate:
		return r.transactions.UpdateTransaction(ctx, *entry.Transaction)
	case core.OpDelete:
		return r.transactions.DeleteTransaction(ctx, entry.TargetID)
	default:
		return fmt.Errorf("unknown operation %q", entry.Op)
	}
}

// settledRemotely decides whether a rejection means the remote is
// already in the target state.
func settledRemotely(op core.Operation, err error) (bool, string) {
	var reqErr *gateway.RequestError
	if !errors.As(err, &reqErr) {
		return false, ""
	}
	if op == core.OpCreate && reqErr.IsConflict() {
		return true, "record already exists remotely"
	}
	if (op == core.OpDelete || op == core.OpUpdate) && reqErr.IsNotFound() {
		return true, "record already gone remotely"
	}
	return false, ""
}
