package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrKind classifies a failure so the router and the HTTP boundary can act
// on it without inspecting vendor detail.
type ErrKind string

const (
	KindValidation           ErrKind = "validation"
	KindAuthenticationFailed ErrKind = "authentication_failed"
	KindRateLimited          ErrKind = "rate_limited"
	KindCostLimitExceeded    ErrKind = "cost_limit_exceeded"
	KindTierForbidden        ErrKind = "tier_forbidden"
	KindProviderUnavailable  ErrKind = "provider_unavailable"
	KindModelNotFound        ErrKind = "model_not_found"
	KindTaskNotSupported     ErrKind = "task_not_supported"
	KindDeadlineExceeded     ErrKind = "deadline_exceeded"
	KindInternal             ErrKind = "internal"
)

// Error is a classified failure. Message is safe to surface to callers;
// vendor detail stays in the wrapped error.
type Error struct {
	Kind       ErrKind
	Message    string
	RetryAfter int // seconds, advisory; set for rate-limited errors
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a classified error.
func E(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind ErrKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the classification from any error. Context cancellation
// maps to deadline_exceeded; everything unclassified is internal.
func KindOf(err error) ErrKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindDeadlineExceeded
	}
	return KindInternal
}

// Retryable reports whether the router should move to the next candidate
// after this failure rather than surfacing it.
func Retryable(kind ErrKind) bool {
	switch kind {
	case KindRateLimited, KindDeadlineExceeded, KindInternal,
		KindProviderUnavailable, KindAuthenticationFailed,
		KindModelNotFound, KindTaskNotSupported:
		return true
	}
	return false
}

// ClassifyStatus maps a provider HTTP failure to a classified error. Drivers
// with vendor-specific status conventions layer their own checks on top.
func ClassifyStatus(providerID string, err error) *Error {
	var se *StatusError
	if !errors.As(err, &se) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Wrap(KindDeadlineExceeded, err, "%s: request deadline exceeded", providerID)
		}
		return Wrap(KindInternal, err, "%s: request failed", providerID)
	}
	switch {
	case se.StatusCode == http.StatusTooManyRequests:
		ce := Wrap(KindRateLimited, err, "%s: rate limited", providerID)
		ce.RetryAfter = se.RetryAfterSecs
		return ce
	case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
		return Wrap(KindAuthenticationFailed, err, "%s: credentials rejected", providerID)
	case se.StatusCode == http.StatusNotFound:
		return Wrap(KindModelNotFound, err, "%s: model not found", providerID)
	case se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnprocessableEntity:
		return Wrap(KindValidation, err, "%s: request rejected", providerID)
	case se.StatusCode >= 500:
		return Wrap(KindProviderUnavailable, err, "%s: upstream error (status %d)", providerID, se.StatusCode)
	}
	return Wrap(KindInternal, err, "%s: unexpected status %d", providerID, se.StatusCode)
}
