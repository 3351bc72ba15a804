// Package memory is an in-memory stand-in for the remote finance
// service, used by tests and the offline demo backend. Failures are
// injectable so callers can exercise the outbox paths.
package memory

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"finsync/internal/core"
	"finsync/internal/gateway"
)

type Gateway struct {
	mu           sync.Mutex
	account      *core.Account
	categories   []core.Category
	transactions map[int64]core.Transaction
	failWith     error
	calls        map[string]int
}

func New() *Gateway {
	return &Gateway{
		transactions: make(map[int64]core.Transaction),
		calls:        make(map[string]int),
	}
}

// SetFailure makes every subsequent call fail with err until reset with
// nil. Use gateway.ErrUnavailable to simulate a network outage.
func (g *Gateway) SetFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

func (g *Gateway) SetAccount(account core.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = &account
}

func (g *Gateway) SetCategories(categories []core.Category) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.categories = append([]core.Category(nil), categories...)
}

func (g *Gateway) PutTransaction(tx core.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transactions[tx.ID] = tx
}

// Transaction returns the remote copy of a transaction, if present.
func (g *Gateway) Transaction(id int64) (core.Transaction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.transactions[id]
	return tx, ok
}

// Calls returns how often the named operation was attempted.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) begin(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	return g.failWith
}

func (g *Gateway) GetAccount(ctx context.Context) (*core.Account, error) {
	if err := g.begin("getAccount"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.account == nil {
		return nil, core.ErrNotFound
	}
	account := *g.account
	return &account, nil
}

func (g *Gateway) UpdateAccount(ctx context.Context, account core.Account) error {
	if err := g.begin("updateAccount"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = &account
	return nil
}

func (g *Gateway) ListCategories(ctx context.Context) ([]core.Category, error) {
	if err := g.begin("listCategories"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.Category(nil), g.categories...), nil
}

func (g *Gateway) ListCategoriesByDirection(ctx context.Context, direction core.Direction) ([]core.Category, error) {
	if err := g.begin("listCategoriesByDirection"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []core.Category
	for _, c := range g.categories {
		if c.Direction == direction {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *Gateway) ListTransactions(ctx context.Context, accountID int64, from, to time.Time) ([]core.Transaction, error) {
	if err := g.begin("listTransactions"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []core.Transaction
	for _, tx := range g.transactions {
		if tx.AccountID == accountID && tx.InRange(from, to) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Gateway) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := g.begin("createTransaction"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.transactions[tx.ID]; ok {
		return &gateway.RequestError{StatusCode: http.StatusConflict,
			API: &gateway.APIError{Code: "conflict", Message: "transaction already exists"}}
	}
	g.transactions[tx.ID] = tx
	return nil
}

func (g *Gateway) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := g.begin("updateTransaction"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.transactions[tx.ID]; !ok {
		return &gateway.RequestError{StatusCode: http.StatusNotFound,
			API: &gateway.APIError{Code: "not_found", Message: "transaction not found"}}
	}
	g.transactions[tx.ID] = tx
	return nil
}

func (g *Gateway) DeleteTransaction(ctx context.Context, id int64) error {
	if err := g.begin("deleteTransaction"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.transactions[id]; !ok {
		return &gateway.RequestError{StatusCode: http.StatusNotFound,
			API: &gateway.APIError{Code: "not_found", Message: "transaction not found"}}
	}
	delete(g.transactions, id)
	return nil
}
