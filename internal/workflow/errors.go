package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
)

// ErrorCategory classifies errors into categories that determine the retry
// behaviour of each phase.
type ErrorCategory int

const (
	// Transient errors are temporary failures retried with exponential
	// backoff (network timeouts, rate limits, circuit open).
	Transient ErrorCategory = iota

	// Permanent errors are non-recoverable. The phase fails (critical) or
	// is skipped (non-critical) without spending further retries.
	Permanent
)

// String returns a human-readable name for the category.
func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// transientSubstrings indicate a transient failure when the error is not
// already classified by a structured error type.
var transientSubstrings = []string{
	"timeout",
	"network",
	"connection refused",
	"connection reset",
	"circuit breaker",
	"circuit_open",
	"rate limit",
	"rate_limit",
	"server_error",
	"service unavailable",
	"temporary",
	"deadline exceeded",
	"i/o timeout",
}

// permanentSubstrings indicate a permanent failure.
// Substrings are chosen to avoid false positives: "unauthorized" instead of
// "auth" (which would match "author"), "invalid_input"/"invalid request"
// instead of bare "invalid".
var permanentSubstrings = []string{
	"unauthorized",
	"authentication failed",
	"authorization failed",
	"forbidden",
	"bad_request",
	"bad request",
	"not_found",
	"not found",
	"invalid_input",
	"invalid request",
	"invalid parameter",
	"validation",
	"content_filter",
}

// Classify inspects err and returns its ErrorCategory.
//
// Classification priority:
//  1. Nil errors: Permanent (callers should not retry nil)
//  2. Context cancellation: Permanent (never retry cancelled work)
//  3. Structured LLM errors (llm.APIError): uses the HTTP status
//  4. Domain sentinel errors: ErrRateLimited, ErrServiceUnavailable, etc.
//  5. Error message substring matching (transient checked first for
//     fail-safe bias)
//  6. Default: Transient (safer to retry than to fail)
func Classify(err error) ErrorCategory {
	if err == nil {
		return Permanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled) {
		return Permanent
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsTransient() {
			return Transient
		}
		return Permanent
	}
	if errors.Is(err, llm.ErrCircuitOpen) {
		return Transient
	}

	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable) {
		return Transient
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
		return Permanent
	}

	msg := strings.ToLower(err.Error())

	// Transient substrings checked before permanent for fail-safe bias:
	// if in doubt, retry is safer than giving up.
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}

	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}

	return Transient
}
