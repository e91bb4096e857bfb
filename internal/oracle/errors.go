// Package oracle adapts third-party reasoning backends (Anthropic's
// Claude, OpenAI's chat completions, Google's Gemini) behind the single
// agentcore.Oracle contract, so internal/agentcore.Agent and
// internal/orchestrator.Session both drive the same request/response shape
// regardless of which provider answers a given agent's oracle calls.
package oracle

import (
	"errors"
	"net/http"
	"strings"
)

// FailoverReason categorizes why a provider call failed, driving the retry
// decision in the backoff loop each adapter runs around its API call.
type FailoverReason string

const (
	FailoverRateLimit   FailoverReason = "rate_limit"
	FailoverTimeout     FailoverReason = "timeout"
	FailoverServerError FailoverReason = "server_error"
	FailoverAuth        FailoverReason = "auth"
	FailoverBilling     FailoverReason = "billing"
	FailoverInvalid     FailoverReason = "invalid_request"
	FailoverUnknown     FailoverReason = "unknown"
)

// IsRetryable reports whether a failure of this kind is worth retrying.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a structured, retry-classified error from a reasoning
// backend call.
type ProviderError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
	Cause    error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, "["+string(e.Reason)+"]", e.Provider)
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps cause, classifying it from its message text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: classifyError(cause)}
}

// WithStatus reclassifies the error from an HTTP status code, when the
// underlying SDK surfaces one.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalid
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return FailoverTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return FailoverRateLimit
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return FailoverAuth
	case strings.Contains(msg, "billing"), strings.Contains(msg, "quota"), strings.Contains(msg, "402"):
		return FailoverBilling
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"), strings.Contains(msg, "internal server"):
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

// IsRetryable reports whether err (a raw error or a *ProviderError) should
// be retried by the calling adapter's backoff loop.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return classifyError(err).IsRetryable()
}
