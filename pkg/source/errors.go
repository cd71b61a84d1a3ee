package source

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPaperNotFound reports a getPaper miss. A miss is routine (sources
// drop records), so callers match it with errors.Is rather than logging
// it as a failure.
var ErrPaperNotFound = errors.New("paper not found")

// TransportError is a typed transport failure from a source adapter.
// StatusCode is zero for connection-level failures.
type TransportError struct {
	Source     string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same request could succeed.
// Client errors (bad request, auth, missing resource) never will.
func (e *TransportError) Retryable() bool {
	switch e.StatusCode {
	case 400, 401, 403, 404:
		return false
	}
	return true
}

// IsRetryable classifies an arbitrary adapter error. Typed transport
// errors answer for themselves; untyped errors fall back to message
// sniffing so wrapped vendor SDK errors still classify sensibly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPaperNotFound) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid query", "unauthorized", "forbidden", "not found", "bad request"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}
