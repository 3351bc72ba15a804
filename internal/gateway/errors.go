package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable marks transport-level failures: DNS, refused
// connections, timeouts. The remote was never able to rule on the call.
var ErrUnavailable = errors.New("remote unavailable")

// APIError is the server-supplied failure payload, when present.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequestError is a non-2xx response from the remote service.
type RequestError struct {
	StatusCode int
	API        *APIError
}

func (e *RequestError) Error() string {
	if e.API != nil && e.API.Message != "" {
		return fmt.Sprintf("remote rejected request (%d): %s", e.StatusCode, e.API.Message)
	}
	return fmt.Sprintf("remote rejected request (%d)", e.StatusCode)
}

// IsConflict reports a 409: the record already exists remotely.
func (e *RequestError) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// IsNotFound reports a 404: the record is gone remotely.
func (e *RequestError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsUnavailable reports whether err is a transport-level failure rather
// than a remote rejection.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
