package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"finsync/internal/core"
)

const dateLayout = "2006-01-02"

// GetAccount returns the first account the service lists; the app
// models a single balance holder.
func (c *Client) GetAccount(ctx context.Context) (*core.Account, error) {
	data, err := c.request(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, err
	}

	var dtos []accountDTO
	if err := decodeInto(data, &dtos); err != nil {
		return nil, err
	}
	if len(dtos) == 0 {
		return nil, core.ErrNotFound
	}
	return dtos[0].toAccount()
}

func (c *Client) UpdateAccount(ctx context.Context, account core.Account) error {
	endpoint := fmt.Sprintf("/accounts/%d", account.ID)
	_, err := c.request(ctx, http.MethodPut, endpoint, newAccountUpdateRequest(account))
	return err
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	return c.fetchCategories(ctx, "/categories")
}

func (c *Client) ListCategoriesByDirection(ctx context.Context, direction core.Direction) ([]core.Category, error) {
	endpoint := fmt.Sprintf("/categories/type/%t", direction == core.Income)
	return c.fetchCategories(ctx, endpoint)
}

func (c *Client) fetchCategories(ctx context.Context, endpoint string) ([]core.Category, error) {
	data, err := c.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var dtos []categoryDTO
	if err := decodeInto(data, &dtos); err != nil {
		return nil, err
	}

	categories := make([]core.Category, 0, len(dtos))
	for _, dto := range dtos {
		category, err := dto.toCategory()
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func (c *Client) ListTransactions(ctx context.Context, accountID int64, from, to time.Time) ([]core.Transaction, error) {
	endpoint := fmt.Sprintf("/transactions/account/%d/period?startDate=%s&endDate=%s",
		accountID, from.Format(dateLayout), to.Format(dateLayout))

	data, err := c.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var dtos []transactionResponseDTO
	if err := decodeInto(data, &dtos); err != nil {
		return nil, err
	}

	txs := make([]core.Transaction, 0, len(dtos))
	for _, dto := range dtos {
		tx, err := dto.toTransaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (c *Client) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := c.request(ctx, http.MethodPost, "/transactions", newTransactionRequest(tx))
	return err
}

func (c *Client) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	endpoint := fmt.Sprintf("/transactions/%d", tx.ID)
	_, err := c.request(ctx, http.MethodPut, endpoint, newTransactionRequest(tx))
	return err
}

func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	endpoint := fmt.Sprintf("/transactions/%d", id)
	_, err := c.request(ctx, http.MethodDelete, endpoint, nil)
	return err
}
