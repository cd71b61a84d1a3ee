package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes a failure for retry decisions and user-facing
// messages. Kinds, not types: the same Go error value may map to different
// kinds depending on its message.
type ErrorKind string

const (
	KindAborted   ErrorKind = "aborted"
	KindTimeout   ErrorKind = "timeout"
	KindRateLimit ErrorKind = "rate_limit"
	KindAuth      ErrorKind = "auth"
	KindNetwork   ErrorKind = "network"
	KindUnknown   ErrorKind = "unknown"
)

// ProviderError is a typed failure from the model provider.
type ProviderError struct {
	Message   string
	Kind      ErrorKind
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider error (%s): %s", e.Kind, e.Message)
}

// Classify maps an arbitrary error to an ErrorKind by inspecting sentinel
// errors first, then the message text.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "abort") || strings.Contains(msg, "cancel") || strings.Contains(msg, "chunked"):
		return KindAborted
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "overloaded"):
		return KindRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "api key"):
		return KindAuth
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dns") || strings.Contains(msg, "eof"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// Retryable reports whether an error of this kind is worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindNetwork:
		return true
	default:
		return false
	}
}

// UserMessage returns a concise user-facing description of the failure.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindAborted:
		return "The request was interrupted before completing."
	case KindTimeout:
		return "The model took too long to respond. Please try again."
	case KindRateLimit:
		return "The model provider is rate-limiting requests. Please wait a moment and retry."
	case KindAuth:
		return "Authentication with the model provider failed. Check the configured API key."
	case KindNetwork:
		return "A network error interrupted the request. Please check connectivity and retry."
	default:
		return "An unexpected error occurred while generating content."
	}
}
