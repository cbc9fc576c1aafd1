package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrFetchFailed is returned once every attempt for a URL has failed.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrInvalidRange rejects ranges that are not 1-based and ordered.
	ErrInvalidRange = errors.New("invalid range")
	// ErrStartOutOfRange rejects a start index beyond the discovered products.
	ErrStartOutOfRange = errors.New("start index out of range")
	// ErrNoProducts aborts a run whose categories yielded no product URLs.
	ErrNoProducts = errors.New("no products found")
)

// RangeError describes a rejected crawl range.
type RangeError struct {
	Start int
	End   int
	Total int
	Err   error
}

func (e *RangeError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNoProducts):
		return "no product URLs were discovered; check the category URL and site profile"
	case errors.Is(e.Err, ErrStartOutOfRange):
		return fmt.Sprintf("start index %d exceeds the %d products found (valid range 1-%d)", e.Start, e.Total, e.Total)
	default:
		return fmt.Sprintf("invalid range [%d, %d]: start must be >= 1 and end >= start", e.Start, e.End)
	}
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates a response outside the success range.
type ErrHTTPStatus struct {
	Status int
	Err    error
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Errorf("http %d: %w", e.Status, e.Err).Error()
}

func (e ErrHTTPStatus) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
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
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		switch {
		case status.Status == http.StatusForbidden:
			return "forbidden"
		case status.Status == http.StatusNotFound:
			return "not_found"
		case status.Status == http.StatusTooManyRequests:
			return "rate_limited"
		case status.Status >= http.StatusInternalServerError:
			return "server"
		default:
			return "http_status"
		}
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}

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

	if statusCode >= http.StatusBadRequest || (statusCode != 0 && err != nil) {
		wrapped := err
		if wrapped == nil {
			wrapped = errors.New(http.StatusText(statusCode))
		}
		return ErrHTTPStatus{Status: statusCode, Err: wrapped}
	}

	return err
}
