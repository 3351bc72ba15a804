// Package storage provides the durable on-device record store and the
// outbox of pending remote mutations, both backed by a single SQLite
// database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
	applog "finsync/internal/log"

	_ "modernc.org/sqlite"
)

// Error marks a local persistence I/O fault. Callers treat it like an
// unreachable remote and fall back to in-memory state.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &Error{Op: op, Err: err}
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes concurrent writers; SQLite allows
	// only one anyway and returns SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetAccount returns the single stored account, or core.ErrNotFound when
// the app has never seen one.
func (r *Repository) GetAccount(ctx context.Context) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, balance, currency, created_at, updated_at
		FROM accounts LIMIT 1`)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get account", err)
	}
	return account, nil
}

// PutAccount upserts the account by id.
func (r *Repository) PutAccount(ctx context.Context, account core.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, balance, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			balance = excluded.balance,
			currency = excluded.currency,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		account.ID, account.UserID, account.Name, account.Balance.String(),
		account.Currency, fmtTime(account.CreatedAt), fmtTime(account.UpdatedAt))
	if err != nil {
		return storageErr("put account", err)
	}

	slog.DebugContext(ctx, "Account saved to SQLite",
		"id", account.ID, applog.FieldBalance, account.Balance.String(), applog.FieldCurrency, account.Currency)
	return nil
}

// ListCategories returns all cached categories.
func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, emoji, direction FROM categories ORDER BY id`)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji, &c.Direction); err != nil {
			return nil, storageErr("scan category", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list categories", err)
	}
	return categories, nil
}

// ReplaceCategories swaps the entire category cache for the given set.
// Categories carry no client-originated mutations, so a wholesale
// replace is the reconciliation, not a shortcut.
func (r *Repository) ReplaceCategories(ctx context.Context, categories []core.Category) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin replace categories", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return storageErr("clear categories", err)
	}
	for _, c := range categories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, emoji, direction) VALUES (?, ?, ?, ?)`,
			c.ID, c.Name, c.Emoji, string(c.Direction))
		if err != nil {
			return storageErr("insert category", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit replace categories", err)
	}

	slog.DebugContext(ctx, "Category cache replaced", "count", len(categories))
	return nil
}

// GetTransaction returns one transaction by id, or core.ErrNotFound.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, category_id, amount, transaction_date, comment, created_at, updated_at
		FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get transaction", err)
	}
	return t, nil
}

// ListTransactions returns every stored transaction.
func (r *Repository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, category_id, amount, transaction_date, comment, created_at, updated_at
		FROM transactions ORDER BY transaction_date, id`)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("scan transaction", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list transactions", err)
	}
	return txs, nil
}

// PutTransaction upserts a transaction by id.
func (r *Repository) PutTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, category_id, amount, transaction_date, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			amount = excluded.amount,
			transaction_date = excluded.transaction_date,
			comment = excluded.comment,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		t.ID, t.AccountID, t.CategoryID, t.Amount.String(), fmtTime(t.TransactionDate),
		t.Comment, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		return storageErr("put transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID, applog.FieldAmount, t.Amount.String())
	return nil
}

// DeleteTransaction removes a transaction by id. Deleting a missing id
// is not an error at this layer; existence checks belong to the service.
func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return storageErr("delete transaction", err)
	}
	return nil
}

// ReplaceTransactions swaps the whole stored transaction set for the
// remote-confirmed one.
func (r *Repository) ReplaceTransactions(ctx context.Context, txs []core.Transaction) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin replace transactions", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return storageErr("clear transactions", err)
	}
	for _, t := range txs {
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO transactions (id, account_id, category_id, amount, transaction_date, comment, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AccountID, t.CategoryID, t.Amount.String(), fmtTime(t.TransactionDate),
			t.Comment, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
		if err != nil {
			return storageErr("insert transaction", err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return storageErr("commit replace transactions", err)
	}

	slog.DebugContext(ctx, "Transaction set replaced", "count", len(txs))
	return nil
}

// ExistsTransaction reports whether a transaction with the id is stored.
func (r *Repository) ExistsTransaction(ctx context.Context, id int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, storageErr("exists transaction", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*core.Account, error) {
	var (
		a                              core.Account
		balance, createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &balance, &a.Currency, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTransaction(row scanner) (*core.Transaction, error) {
	var (
		t                                    core.Transaction
		amount, txDate, createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.CategoryID, &amount, &txDate, &t.Comment, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if t.TransactionDate, err = parseTime(txDate); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
