package esi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotModified reports a conditional fetch answered with 304: the stored
// payload is still current and no state should be touched.
var ErrNotModified = errors.New("esi: not modified")

// ErrAuthExpired reports a credential ESI no longer accepts. Not retryable;
// the stream stays suspended until the user re-authorizes.
var ErrAuthExpired = errors.New("esi: authorization expired")

type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("esi: unexpected status %d for %s", e.Code, e.URL)
}

// Transient reports whether an error is worth retrying within the round.
// Auth failures and client errors are not; timeouts, rate limiting and
// server errors are.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrNotModified) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests ||
			se.Code == 420 || // ESI error-limit backoff
			se.Code >= http.StatusInternalServerError
	}
	// network-level failures
	return true
}
