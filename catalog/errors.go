package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FetchError is the only failure a Gateway reports: the remote store could
// not answer a read.
type FetchError struct {
	Table string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Table, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrTimeout marks a catalog read that outlived its query deadline, either
// the caller's context or the HTTP client timeout of the REST backend.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return "catalog timeout: " + e.Err.Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection marks a read that never reached the catalog: DNS, dial or
// reset failures below the HTTP layer.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return "catalog connection: " + e.Err.Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden marks a read the catalog refused, typically a missing or
// revoked anon key or a row-level policy answering 401/403.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return "catalog forbidden: " + e.Err.Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound marks a read against a table the catalog does not expose.
// An empty result set is not an error.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return "catalog not found: " + e.Err.Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited marks a read the hosted catalog throttled with 429.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return "catalog rate limited: " + e.Err.Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrorTypeLabel names the class of a failed catalog read. It is the
// error_type label of storefront_fetch_failures_total.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	if errors.Is(err, ErrInvalidQuery) {
		return "invalid_query"
	}
	return "other"
}

// classifyError maps a transport error or a non-2xx status of the REST
// backend onto the catalog error classes. Unrecognised statuses keep the
// plain error and count as "other".
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		return wrapped
	}

	return err
}

func fetchError(table string, err error, statusCode int) error {
	return &FetchError{Table: table, Err: classifyError(err, statusCode)}
}
