// Package gateway is the boundary to the remote finance service: a
// REST/JSON client with bearer-token auth plus the ports the domain
// services consume. The gateway performs no outbox or fallback logic of
// its own; it reports success or a typed failure per call.
package gateway

import (
	"context"
	"time"

	"finsync/internal/core"
)

// Ports for the remote service, one per entity.
type (
	AccountGateway interface {
		// GetAccount returns the user's single account.
		GetAccount(ctx context.Context) (*core.Account, error)
		UpdateAccount(ctx context.Context, account core.Account) error
	}

	CategoryGateway interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		ListCategoriesByDirection(ctx context.Context, direction core.Direction) ([]core.Category, error)
	}

	TransactionGateway interface {
		// ListTransactions returns the account's transactions with a
		// transaction date inside [from, to].
		ListTransactions(ctx context.Context, accountID int64, from, to time.Time) ([]core.Transaction, error)
		CreateTransaction(ctx context.Context, tx core.Transaction) error
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id int64) error
	}
)
