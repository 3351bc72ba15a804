package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	applog "finsync/internal/log"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 2
	defaultRetryBase   = 500 * time.Millisecond
	maxErrorBodyLength = 1 << 16
)

// ClientConfig holds the remote service connection settings.
type ClientConfig struct {
	BaseURL string
	Token   string

	// Timeout bounds each attempt. A hung remote call must never stall
	// a service operation indefinitely.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after a transport
	// failure. Non-2xx responses are never retried here; replay is the
	// reconciler's job.
	MaxRetries uint64
}

// Client implements the gateway ports over HTTP/JSON.
type Client struct {
	config ClientConfig
	http   *http.Client
}

func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaultMaxRetries
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

// request performs one HTTP call with bearer auth and bounded retries on
// transport failures. It returns the response body on 2xx and a typed
// *RequestError on any other status.
func (c *Client) request(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	var response []byte
	backoff := retry.WithMaxRetries(c.config.MaxRetries, retry.NewFibonacci(defaultRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		data, err := c.do(ctx, method, endpoint, encoded)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				// The remote ruled on the call; retrying will not help.
				return err
			}
			slog.DebugContext(ctx, "Transport failure, will retry",
				applog.FieldMethod, method, applog.FieldEndpoint, endpoint, applog.FieldError, err)
			return retry.RetryableError(err)
		}
		response = data
		return nil
	})
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, endpoint, err)
	}
	return response, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Error payloads are small; cap the read in case the server
		// sends garbage.
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		var apiErr APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			reqErr.API = &apiErr
		}
		slog.WarnContext(ctx, "Remote rejected request",
			applog.FieldMethod, method, applog.FieldEndpoint, endpoint, applog.FieldStatus, resp.StatusCode)
		return nil, reqErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}
