package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(ClientConfig{
		BaseURL: srv.URL,
		Token:   "test-token",
		Timeout: 2 * time.Second,
	})
	return client, srv
}

func TestGetAccount(t *testing.T) {
	var gotAuth string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{
			"id": 1, "userId": 79, "name": "Main",
			"balance": "1000.50", "currency": "RUB",
			"createdAt": "2025-06-01T10:00:00.000Z",
			"updatedAt": "2025-08-01T10:00:00Z"
		}]`))
	}))
	defer srv.Close()

	account, err := client.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !account.Balance.Equal(decimal.RequireFromString("1000.50")) {
		t.Errorf("balance = %s", account.Balance)
	}
	if account.Currency != "RUB" || account.ID != 1 {
		t.Errorf("unexpected account %+v", account)
	}
}

func TestGetAccountEmptyList(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	if _, err := client.GetAccount(context.Background()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestErrorMapping(t *testing.T) {
	statuses := []int{400, 401, 404, 409, 500}
	for _, status := range statuses {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"code": "oops", "message": "server said no"}`))
		}))

		err := client.DeleteTransaction(context.Background(), 1)
		srv.Close()

		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("status %d: expected RequestError, got %v", status, err)
		}
		if reqErr.StatusCode != status {
			t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, status)
		}
		if reqErr.API == nil || reqErr.API.Message != "server said no" {
			t.Errorf("status %d: server payload not decoded: %+v", status, reqErr.API)
		}
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "t", Timeout: time.Second, MaxRetries: 1})
	_, err := client.GetAccount(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestTransportRetry(t *testing.T) {
	attempts := 0
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// Drop the first connection mid-flight
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("recorder does not support hijack")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	if _, err := client.ListCategories(context.Background()); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestListTransactionsQueryAndDecode(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/account/1/period" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("startDate"); got != "2025-08-01" {
			t.Errorf("startDate = %q", got)
		}
		if got := r.URL.Query().Get("endDate"); got != "2025-08-31" {
			t.Errorf("endDate = %q", got)
		}
		w.Write([]byte(`[{
			"id": 2,
			"account": {"id": 1, "name": "Main", "balance": "800.00", "currency": "RUB"},
			"category": {"id": 3, "name": "groceries", "emoji": "🛒", "direction": "outcome"},
			"amount": "200.50",
			"transactionDate": "2025-08-10T14:30:00.000Z",
			"comment": null,
			"createdAt": "2025-08-10T14:30:05Z",
			"updatedAt": "2025-08-10T14:30:05Z"
		}]`))
	}))
	defer srv.Close()

	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)
	txs, err := client.ListTransactions(context.Background(), 1, from, to)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.ID != 2 || tx.AccountID != 1 || tx.CategoryID != 3 {
		t.Errorf("ids not flattened from nested DTOs: %+v", tx)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("200.50")) {
		t.Errorf("amount = %s", tx.Amount)
	}
	if tx.Comment != "" {
		t.Errorf("null comment should map to empty, got %q", tx.Comment)
	}
}

func TestLargeTransactionListNotTruncated(t *testing.T) {
	const count = 400

	var body strings.Builder
	body.WriteString("[")
	for i := 0; i < count; i++ {
		if i > 0 {
			body.WriteString(",")
		}
		fmt.Fprintf(&body, `{
			"id": %d,
			"account": {"id": 1, "name": "Main", "balance": "800.00", "currency": "RUB"},
			"category": {"id": 3, "name": "groceries", "emoji": "🛒", "direction": "outcome"},
			"amount": "200.50",
			"transactionDate": "2025-08-10T14:30:00Z",
			"comment": "some longer free-form comment text to pad the payload out",
			"createdAt": "2025-08-10T14:30:05Z",
			"updatedAt": "2025-08-10T14:30:05Z"
		}`, i+1)
	}
	body.WriteString("]")
	if body.Len() <= maxErrorBodyLength {
		t.Fatalf("payload too small to exercise truncation: %d bytes", body.Len())
	}

	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.String()))
	}))
	defer srv.Close()

	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)
	txs, err := client.ListTransactions(context.Background(), 1, from, to)
	if err != nil {
		t.Fatalf("ListTransactions on large payload: %v", err)
	}
	if len(txs) != count {
		t.Errorf("decoded %d transactions, want %d", len(txs), count)
	}
}

func TestCreateTransactionBody(t *testing.T) {
	var body string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		body = string(buf)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tx := core.Transaction{
		ID:              5,
		AccountID:       1,
		CategoryID:      3,
		Amount:          decimal.RequireFromString("200.50"),
		TransactionDate: time.Date(2025, 8, 10, 14, 30, 0, 0, time.UTC),
		Comment:         "coffee",
	}
	if err := client.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	for _, want := range []string{`"amount":"200.50"`, `"categoryId":3`, `"comment":"coffee"`} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %s: %s", want, body)
		}
	}
}

func TestParseISO8601Variants(t *testing.T) {
	variants := []string{
		"2025-08-10T14:30:00Z",
		"2025-08-10T14:30:00.000Z",
		"2025-08-10T14:30:00.123456789Z",
		"2025-08-10T14:30:00",
		"2025-08-10T14:30:00+03:00",
	}
	for _, v := range variants {
		if _, err := parseISO8601(v); err != nil {
			t.Errorf("parseISO8601(%q): %v", v, err)
		}
	}
	if _, err := parseISO8601("10.08.2025"); err == nil {
		t.Error("expected error for non-ISO timestamp")
	}
}
