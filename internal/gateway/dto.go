package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
)

// Wire types are deliberately loose: every amount is a string, every
// timestamp an ISO-8601 string. Conversion into the strict core types
// happens here, with a typed error instead of silently propagated nulls.
type (
	accountDTO struct {
		ID        int64  `json:"id"`
		UserID    int64  `json:"userId"`
		Name      string `json:"name"`
		Balance   string `json:"balance"`
		Currency  string `json:"currency"`
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}

	accountUpdateRequest struct {
		Name     string `json:"name"`
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	}

	accountBriefDTO struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	}

	categoryDTO struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Emoji     string `json:"emoji"`
		Direction string `json:"direction"`
	}

	transactionRequestDTO struct {
		AccountID       int64  `json:"accountId"`
		CategoryID      int64  `json:"categoryId"`
		Amount          string `json:"amount"`
		TransactionDate string `json:"transactionDate"`
		Comment         string `json:"comment"`
	}

	transactionResponseDTO struct {
		ID              int64           `json:"id"`
		Account         accountBriefDTO `json:"account"`
		Category        categoryDTO     `json:"category"`
		Amount          string          `json:"amount"`
		TransactionDate string          `json:"transactionDate"`
		Comment         *string         `json:"comment"`
		CreatedAt       string          `json:"createdAt"`
		UpdatedAt       string          `json:"updatedAt"`
	}
)

// iso8601Layouts covers the sub-second-precision variants the remote
// service has been observed to emit.
var iso8601Layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
}

func parseISO8601(s string) (time.Time, error) {
	for _, layout := range iso8601Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

func (d accountDTO) toAccount() (*core.Account, error) {
	balance, err := parseAmount(d.Balance)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseISO8601(d.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseISO8601(d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account := &core.Account{
		ID:        d.ID,
		UserID:    d.UserID,
		Name:      d.Name,
		Balance:   balance,
		Currency:  d.Currency,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	return account, nil
}

func (d categoryDTO) toCategory() (core.Category, error) {
	direction, err := core.ParseDirection(d.Direction)
	if err != nil {
		return core.Category{}, fmt.Errorf("category %d: %w", d.ID, err)
	}
	category := core.Category{
		ID:        d.ID,
		Name:      d.Name,
		Emoji:     d.Emoji,
		Direction: direction,
	}
	if err := category.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("category %d: %w", d.ID, err)
	}
	return category, nil
}

func (d transactionResponseDTO) toTransaction() (core.Transaction, error) {
	amount, err := parseAmount(d.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", d.ID, err)
	}
	txDate, err := parseISO8601(d.TransactionDate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", d.ID, err)
	}
	createdAt, err := parseISO8601(d.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", d.ID, err)
	}
	updatedAt, err := parseISO8601(d.UpdatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", d.ID, err)
	}

	comment := ""
	if d.Comment != nil {
		comment = *d.Comment
	}

	return core.Transaction{
		ID:              d.ID,
		AccountID:       d.Account.ID,
		CategoryID:      d.Category.ID,
		Amount:          amount,
		TransactionDate: txDate,
		Comment:         comment,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func newTransactionRequest(tx core.Transaction) transactionRequestDTO {
	return transactionRequestDTO{
		AccountID:       tx.AccountID,
		CategoryID:      tx.CategoryID,
		Amount:          tx.Amount.String(),
		TransactionDate: tx.TransactionDate.UTC().Format(time.RFC3339),
		Comment:         tx.Comment,
	}
}

func newAccountUpdateRequest(account core.Account) accountUpdateRequest {
	return accountUpdateRequest{
		Name:     account.Name,
		Balance:  account.Balance.String(),
		Currency: account.Currency,
	}
}

func decodeInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
