// Package core holds the domain model for the finance sync core:
// accounts, categories, transactions and the validation rules that
// guard them before anything touches storage or the network.
package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  Direction = "income"
	Outcome Direction = "outcome"
)

type (
	// Direction classifies a category as increasing or decreasing the balance.
	Direction string

	// Category is reference data: refreshed wholesale from the remote
	// service, never edited locally.
	Category struct {
		ID        int64
		Name      string
		Emoji     string
		Direction Direction
	}

	// Account is the single monetary balance holder of the app.
	Account struct {
		ID        int64
		UserID    int64
		Name      string
		Balance   decimal.Decimal
		Currency  string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Transaction is a single financial movement. Amount is always a
	// positive magnitude; the sign is derived from the category direction.
	Transaction struct {
		ID              int64
		AccountID       int64
		CategoryID      int64
		Amount          decimal.Decimal
		TransactionDate time.Time
		Comment         string
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrFutureDate       = errors.New("transaction date is in the future")
	ErrMissingCategory  = errors.New("missing category")
	ErrMissingAccount   = errors.New("missing account")
	ErrInvalidEmoji     = errors.New("emoji must be a single character")
	ErrInvalidDirection = errors.New("invalid direction")
)

// ParseDirection converts a wire string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Income, Outcome:
		return Direction(s), nil
	default:
		return "", ErrInvalidDirection
	}
}

// DirectionFromIncome maps the boolean isIncome wire flag to a Direction.
func DirectionFromIncome(isIncome bool) Direction {
	if isIncome {
		return Income
	}
	return Outcome
}

// IsIncome reports whether the category increases the account balance.
func (c Category) IsIncome() bool {
	return c.Direction == Income
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("empty category name")
	}
	if utf8.RuneCountInString(c.Emoji) != 1 {
		return ErrInvalidEmoji
	}
	if _, err := ParseDirection(string(c.Direction)); err != nil {
		return err
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Currency) == "" {
		return errors.New("empty currency code")
	}
	return nil
}

// Validate checks the invariants a transaction must hold at creation
// time: positive amount, resolvable foreign keys, date not in the future.
func (t Transaction) Validate(now time.Time) error {
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if t.CategoryID == 0 {
		return ErrMissingCategory
	}
	if t.AccountID == 0 {
		return ErrMissingAccount
	}
	if t.TransactionDate.After(now) {
		return ErrFutureDate
	}
	return nil
}

// InRange reports whether the transaction date falls within [from, to].
func (t Transaction) InRange(from, to time.Time) bool {
	return !t.TransactionDate.Before(from) && !t.TransactionDate.After(to)
}
