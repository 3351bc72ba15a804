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

// TransactionService orchestrates transaction mutations and reads across
// the remote gateway, the local store and the outbox. Every mutation
// that lands, remotely or only locally, triggers a full balance
// recompute on the account service.
type TransactionService struct {
	mu         sync.Mutex
	store      *storage.Repository
	remote     gateway.TransactionGateway
	reconciler *Reconciler
	accounts   *AccountService
	categories *CategoryService
	cached     map[int64]core.Transaction
	loaded     bool
	now        func() time.Time
}

func NewTransactionService(
	store *storage.Repository,
	remote gateway.TransactionGateway,
	reconciler *Reconciler,
	accounts *AccountService,
	categories *CategoryService,
) *TransactionService {
	return &TransactionService{
		store:      store,
		remote:     remote,
		reconciler: reconciler,
		accounts:   accounts,
		categories: categories,
		cached:     make(map[int64]core.Transaction),
		now:        time.Now,
	}
}

// FetchTransactions returns transactions dated within [from, to]. The
// outbox is flushed first; then the live remote set replaces the local
// one. When the remote is unreachable the result is the union of the
// local store and outbox snapshots, deduplicated by id with the outbox
// winning, minus pending deletes.
func (s *TransactionService) FetchTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconciler.Reconcile(ctx)

	accountID := int64(0)
	if account, ok := s.accounts.Balance(); ok {
		accountID = account.ID
	} else if stored, err := s.store.GetAccount(ctx); err == nil {
		accountID = stored.ID
	}

	fetched, remoteErr := s.remote.ListTransactions(ctx, accountID, from, to)
	if remoteErr == nil {
		if err := s.store.ReplaceTransactions(ctx, fetched); err != nil {
			slog.WarnContext(ctx, "Failed to persist fetched transactions", applog.FieldError, err)
		}
		s.cached = make(map[int64]core.Transaction, len(fetched))
		for _, tx := range fetched {
			s.cached[tx.ID] = tx
			// The remote confirmed these ids; any queued operation
			// for them is stale.
			if err := s.store.DeleteEntry(ctx, core.EntityTransaction, tx.ID); err != nil {
				slog.WarnContext(ctx, "Failed to clear confirmed outbox entry",
					applog.FieldTargetID, tx.ID, applog.FieldError, err)
			}
		}
		s.loaded = true
		return fetched, nil
	}

	slog.WarnContext(ctx, "Remote transaction fetch failed, serving local fallback", applog.FieldError, remoteErr)
	return s.localFallbackLocked(ctx, from, to), nil
}

// localFallbackLocked merges the local store with outbox payloads. The
// outbox is more recent, so its snapshot wins on conflict; a pending
// delete excludes the id entirely.
func (s *TransactionService) localFallbackLocked(ctx context.Context, from, to time.Time) []core.Transaction {
	merged := make(map[int64]core.Transaction)

	stored, err := s.store.ListTransactions(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Local store unavailable, serving in-memory cache", applog.FieldError, err)
		for id, tx := range s.cached {
			merged[id] = tx
		}
	} else {
		for _, tx := range stored {
			merged[tx.ID] = tx
		}
	}

	pending, err := s.store.FetchPending(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Outbox unavailable during fallback read", applog.FieldError, err)
	}
	for _, entry := range pending {
		if entry.Entity != core.EntityTransaction {
			continue
		}
		if entry.Op == core.OpDelete {
			delete(merged, entry.TargetID)
			continue
		}
		if entry.Transaction != nil {
			merged[entry.TargetID] = *entry.Transaction
		}
	}

	var out []core.Transaction
	for _, tx := range merged {
		if tx.InRange(from, to) {
			out = append(out, tx)
		}
	}
	core.SortTransactions(out, core.SortByDate)

	s.cached = merged
	s.loaded = true
	return out
}

// CreateTransaction validates and applies a new transaction: local
// write-ahead, then the remote call. A remote failure queues a create
// for replay and still reports the failure; the mutation itself is never
// lost.
func (s *TransactionService) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	if s.existsLocked(ctx, tx.ID) {
		return core.ErrAlreadyExists
	}

	now := s.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	return s.applyLocked(ctx, core.OpCreate, tx)
}

// UpdateTransaction replaces an existing transaction, keeping its
// original creation timestamp.
func (s *TransactionService) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	existing, ok := s.cached[tx.ID]
	if !ok {
		return core.ErrNotFound
	}

	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = s.now()

	return s.applyLocked(ctx, core.OpUpdate, tx)
}

// DeleteTransaction removes a transaction. Deleting an id the app has
// never seen fails fast with no network call and no outbox entry.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	snapshot, ok := s.cached[id]
	if !ok {
		return core.ErrNotFound
	}

	return s.applyLocked(ctx, core.OpDelete, snapshot)
}

// applyLocked runs the shared mutation shape: optimistic local write,
// remote attempt, outbox bookkeeping, balance recompute. The original
// remote error is re-raised after the mutation is safely queued.
func (s *TransactionService) applyLocked(ctx context.Context, op core.Operation, tx core.Transaction) error {
	// Write-ahead local apply, so a crash mid-call can only leave a
	// stale outbox entry whose replay is idempotent.
	if op == core.OpDelete {
		if err := s.store.DeleteTransaction(ctx, tx.ID); err != nil {
			slog.WarnContext(ctx, "Failed to delete transaction locally", applog.FieldError, err)
		}
		delete(s.cached, tx.ID)
	} else {
		if err := s.store.PutTransaction(ctx, tx); err != nil {
			slog.WarnContext(ctx, "Failed to persist transaction ahead of remote call", applog.FieldError, err)
		}
		s.cached[tx.ID] = tx
	}

	remoteErr := s.callRemote(ctx, op, tx)
	if remoteErr == nil {
		if err := s.store.DeleteEntry(ctx, core.EntityTransaction, tx.ID); err != nil {
			slog.WarnContext(ctx, "Failed to clear stale outbox entry",
				applog.FieldTargetID, tx.ID, applog.FieldError, err)
		}
	} else {
		snapshot := tx
		entry := core.OutboxEntry{
			TargetID:    tx.ID,
			Entity:      core.EntityTransaction,
			Op:          op,
			Transaction: &snapshot,
		}
		if err := s.store.SaveEntry(ctx, entry); err != nil {
			slog.ErrorContext(ctx, "Failed to queue transaction operation",
				applog.FieldTargetID, tx.ID, applog.FieldOperation, op, applog.FieldError, err)
		}
		slog.WarnContext(ctx, "Transaction mutation accepted locally, delivery pending",
			applog.FieldTargetID, tx.ID, applog.FieldOperation, op, applog.FieldError, remoteErr)
	}

	s.recomputeBalanceLocked(ctx)
	return remoteErr
}

func (s *TransactionService) callRemote(ctx context.Context, op core.Operation, tx core.Transaction) error {
	switch op {
	case core.OpCreate:
		return s.remote.CreateTransaction(ctx, tx)
	case core.OpUpdate:
		return s.remote.UpdateTransaction(ctx, tx)
	default:
		return s.remote.DeleteTransaction(ctx, tx.ID)
	}
}

func (s *TransactionService) recomputeBalanceLocked(ctx context.Context) {
	txs := make([]core.Transaction, 0, len(s.cached))
	for _, tx := range s.cached {
		txs = append(txs, tx)
	}
	s.accounts.RecomputeBalance(ctx, txs, s.categories.CategoryMap(ctx))
}

// NextTransactionID proposes the next free id for an offline create:
// one past the largest id seen across cache and outbox.
func (s *TransactionService) NextTransactionID(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	var maxID int64
	for id := range s.cached {
		if id > maxID {
			maxID = id
		}
	}
	if pending, err := s.store.FetchPending(ctx); err == nil {
		for _, entry := range pending {
			if entry.Entity == core.EntityTransaction && entry.TargetID > maxID {
				maxID = entry.TargetID
			}
		}
	}
	return maxID + 1
}

func (s *TransactionService) existsLocked(ctx context.Context, id int64) bool {
	if _, ok := s.cached[id]; ok {
		return true
	}
	exists, err := s.store.ExistsTransaction(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "Existence check against store failed", applog.FieldError, err)
		return false
	}
	return exists
}

// ensureLoadedLocked warms the in-memory cache from the local store once.
func (s *TransactionService) ensureLoadedLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	stored, err := s.store.ListTransactions(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to warm transaction cache", applog.FieldError, err)
		return
	}
	for _, tx := range stored {
		s.cached[tx.ID] = tx
	}
	s.loaded = true
}
