// Package resilience classifies failures from browser navigation and
// rate-limited external services, and provides retry with backoff for the
// ones worth retrying.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry (rate limit, upstream
// hiccup, flaky proxy).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// navigationPatterns are message fragments from chromedp / net errors that
// indicate a transient navigation failure rather than a broken target.
var navigationPatterns = []string{
	"net::err_connection_reset",
	"net::err_connection_refused",
	"net::err_connection_timed_out",
	"net::err_timed_out",
	"net::err_proxy_connection_failed",
	"net::err_tunnel_connection_failed",
	"net::err_name_not_resolved",
	"connection reset by peer",
	"broken pipe",
	"tls handshake timeout",
	"i/o timeout",
	"temporary failure in name resolution",
}

// IsTransient reports whether the error chain contains a TransientError or
// matches a known transient navigation / network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range navigationPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status from an external
// service is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
