package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"finsync/internal/core"
	"finsync/internal/gateway"
	"finsync/internal/storage"
)

// Gateways bundles the remote ports the services depend on. A single
// client usually implements all three, but tests swap in fakes per port.
type Gateways struct {
	Accounts     gateway.AccountGateway
	Categories   gateway.CategoryGateway
	Transactions gateway.TransactionGateway
}

// Services wires the whole domain layer over one store and one set of
// remote gateways.
type Services struct {
	Reconciler   *Reconciler
	Accounts     *AccountService
	Categories   *CategoryService
	Transactions *TransactionService
}

func New(store *storage.Repository, gateways Gateways) *Services {
	reconciler := NewReconciler(store, gateways.Accounts, gateways.Transactions)
	accounts := NewAccountService(store, gateways.Accounts, reconciler)
	categories := NewCategoryService(store, gateways.Categories)
	transactions := NewTransactionService(store, gateways.Transactions, reconciler, accounts, categories)
	return &Services{
		Reconciler:   reconciler,
		Accounts:     accounts,
		Categories:   categories,
		Transactions: transactions,
	}
}

// RefreshResult is a snapshot of everything Refresh pulled in.
type RefreshResult struct {
	Account      *core.Account
	Categories   []core.Category
	Transactions []core.Transaction
}

// Refresh pulls account, categories and transactions for the period.
// The outbox is drained once up front; the three fetches then run
// concurrently. Each fetch falls back to local data on its own, so a
// partial outage still yields a usable snapshot.
func (s *Services) Refresh(ctx context.Context, from, to time.Time) (*RefreshResult, error) {
	s.Reconciler.Reconcile(ctx)

	// The group context is scoped to the two goroutines; the
	// transaction fetch below must keep the caller's context.
	var result RefreshResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		account, err := s.Accounts.GetAccount(gctx)
		result.Account = account
		return err
	})
	g.Go(func() error {
		categories, err := s.Categories.Categories(gctx)
		result.Categories = categories
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Transactions need the account id resolved above.
	txs, err := s.Transactions.FetchTransactions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	result.Transactions = txs
	return &result, nil
}

// Summarize breaks the period down per category for one direction.
func (s *Services) Summarize(ctx context.Context, from, to time.Time, direction core.Direction) (core.PeriodSummary, error) {
	txs, err := s.Transactions.FetchTransactions(ctx, from, to)
	if err != nil {
		return core.PeriodSummary{}, err
	}
	return core.Summarize(txs, s.Categories.CategoryMap(ctx), direction), nil
}

// DailyBalanceSeries returns signed per-day totals for chart rendering.
func (s *Services) DailyBalanceSeries(ctx context.Context, from time.Time, days int) ([]core.DailyBalance, error) {
	to := from.AddDate(0, 0, days-1)
	txs, err := s.Transactions.FetchTransactions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return core.DailyBalances(txs, s.Categories.CategoryMap(ctx), from, days), nil
}
