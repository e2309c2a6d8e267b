package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrEmptyURL is reported for URL entities without an address.
var ErrEmptyURL = errors.New("empty URL")

// ErrTimeout indicates the fetch did not finish within its timeout.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a DNS, dial or transport failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates an HTTP 403 response.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates an HTTP 404 or 410 response.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates an HTTP 429 response.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrStatus is any other non-2xx response.
type ErrStatus struct {
	Code int
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("http_status: unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// statusError maps a non-2xx HTTP status to its typed error, or nil for success.
// A zero code means the transport did not report one.
func statusError(code int) error {
	if code == 0 || (code >= 200 && code < 300) {
		return nil
	}
	base := fmt.Errorf("status %d", code)
	switch code {
	case http.StatusForbidden:
		return ErrForbidden{Err: base}
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound{Err: base}
	case http.StatusTooManyRequests:
		return ErrRateLimited{Err: base}
	default:
		return ErrStatus{Code: code}
	}
}

// classify wraps a transport error into ErrTimeout or ErrConnection.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	return ErrConnection{Err: err}
}

// ErrorType returns a stable label for err, used as a metric label.
func ErrorType(err error) string {
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
	var status ErrStatus
	if errors.As(err, &status) {
		return "http_status"
	}
	return "other"
}
