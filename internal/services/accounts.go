package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"finsync/internal/core"
	"finsync/internal/gateway"
	applog "finsync/internal/log"
	"finsync/internal/storage"
)

// AccountService owns the user's single account: remote-first reads with
// local fallback, optimistic writes with outbox backup, and the balance
// recomputation triggered by transaction mutations.
type AccountService struct {
	mu         sync.Mutex
	store      *storage.Repository
	remote     gateway.AccountGateway
	reconciler *Reconciler
	cached     *core.Account
	now        func() time.Time
}

func NewAccountService(store *storage.Repository, remote gateway.AccountGateway, reconciler *Reconciler) *AccountService {
	return &AccountService{
		store:      store,
		remote:     remote,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// GetAccount flushes the outbox, then prefers the live remote account.
// When the remote is unreachable it serves the stored copy; when storage
// fails too it serves the in-memory one. Only with nothing to fall back
// on is the remote error surfaced.
func (s *AccountService) GetAccount(ctx context.Context) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconciler.Reconcile(ctx)

	account, remoteErr := s.remote.GetAccount(ctx)
	if remoteErr == nil {
		if err := s.store.PutAccount(ctx, *account); err != nil {
			slog.WarnContext(ctx, "Failed to persist fetched account", applog.FieldError, err)
		}
		s.cached = account
		copied := *account
		return &copied, nil
	}

	slog.WarnContext(ctx, "Remote account fetch failed, serving local copy", applog.FieldError, remoteErr)

	if stored, err := s.store.GetAccount(ctx); err == nil {
		s.cached = stored
		copied := *stored
		return &copied, nil
	}
	if s.cached != nil {
		copied := *s.cached
		return &copied, nil
	}
	return nil, remoteErr
}

// UpdateAccount applies a user edit of balance or currency. The local
// copy is written ahead of the remote call; a remote failure queues the
// update for replay and still reports the failure to the caller.
func (s *AccountService) UpdateAccount(ctx context.Context, account core.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, account)
}

func (s *AccountService) updateLocked(ctx context.Context, account core.Account) error {
	account.UpdatedAt = s.now()

	if err := s.store.PutAccount(ctx, account); err != nil {
		slog.WarnContext(ctx, "Failed to persist account ahead of remote call", applog.FieldError, err)
	}
	s.cached = &account

	if err := s.remote.UpdateAccount(ctx, account); err != nil {
		snapshot := account
		entry := core.OutboxEntry{
			TargetID: account.ID,
			Entity:   core.EntityAccount,
			Op:       core.OpUpdate,
			Account:  &snapshot,
		}
		if saveErr := s.store.SaveEntry(ctx, entry); saveErr != nil {
			slog.ErrorContext(ctx, "Failed to queue account update", applog.FieldError, saveErr)
		}
		slog.WarnContext(ctx, "Account update accepted locally, delivery pending",
			applog.FieldTargetID, account.ID, applog.FieldError, err)
		return err
	}

	if err := s.store.DeleteEntry(ctx, core.EntityAccount, account.ID); err != nil {
		slog.WarnContext(ctx, "Failed to clear stale account outbox entry", applog.FieldError, err)
	}
	return nil
}

// RecomputeBalance rebuilds the balance from the full transaction set
// and persists it locally. The remote service derives its own balance
// from the transactions it receives, so nothing is pushed here. An empty
// category map means directions are unknown; the recompute is skipped
// rather than zeroing the balance.
func (s *AccountService) RecomputeBalance(ctx context.Context, txs []core.Transaction, categories map[int64]core.Category) {
	if len(categories) == 0 {
		slog.WarnContext(ctx, "No categories cached, skipping balance recompute")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.cached
	if account == nil {
		stored, err := s.store.GetAccount(ctx)
		if err != nil {
			slog.WarnContext(ctx, "No account known, skipping balance recompute", applog.FieldError, err)
			return
		}
		account = stored
	}

	balance := core.ComputeBalance(txs, categories)
	updated := *account
	updated.Balance = balance
	updated.UpdatedAt = s.now()

	if err := s.store.PutAccount(ctx, updated); err != nil {
		slog.WarnContext(ctx, "Failed to persist recomputed balance", applog.FieldError, err)
	}
	s.cached = &updated

	slog.InfoContext(ctx, "Account balance recomputed",
		applog.FieldBalance, balance.String(), "transactions", len(txs))
}

// Balance returns the currently known balance, if any account is known.
func (s *AccountService) Balance() (core.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return core.Account{}, false
	}
	return *s.cached, true
}
