package agent

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailoverReason
	}{
		{"nil", nil, FailoverUnknown},
		{"timeout text", errors.New("request timeout"), FailoverTimeout},
		{"deadline", errors.New("context deadline exceeded"), FailoverTimeout},
		{"rate limit", errors.New("Rate limit exceeded, retry later"), FailoverRateLimit},
		{"429", errors.New("http 429"), FailoverRateLimit},
		{"auth", errors.New("invalid api key provided"), FailoverAuth},
		{"forbidden", errors.New("status 403"), FailoverAuth},
		{"billing", errors.New("quota exceeded for this month"), FailoverBilling},
		{"content filter", errors.New("blocked by content policy"), FailoverContentFilter},
		{"model gone", errors.New("model not found: gpt-9"), FailoverModelUnavailable},
		{"overloaded", errors.New("upstream overloaded"), FailoverServerError},
		{"500", errors.New("internal server error (500)"), FailoverServerError},
		{"unclassified", errors.New("something odd happened"), FailoverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailoverReasonPredicates(t *testing.T) {
	retryable := map[FailoverReason]bool{
		FailoverBilling:          false,
		FailoverRateLimit:        true,
		FailoverAuth:             false,
		FailoverTimeout:          true,
		FailoverServerError:      true,
		FailoverInvalidRequest:   false,
		FailoverModelUnavailable: false,
		FailoverContentFilter:    false,
		FailoverUnknown:          true,
	}
	for reason, want := range retryable {
		if got := reason.IsRetryable(); got != want {
			t.Errorf("%s.IsRetryable() = %v, want %v", reason, got, want)
		}
	}

	failover := map[FailoverReason]bool{
		FailoverBilling:          true,
		FailoverAuth:             true,
		FailoverModelUnavailable: true,
		FailoverRateLimit:        false,
		FailoverTimeout:          false,
		FailoverServerError:      false,
		FailoverInvalidRequest:   false,
		FailoverContentFilter:    false,
		FailoverUnknown:          false,
	}
	for reason, want := range failover {
		if got := reason.ShouldFailover(); got != want {
			t.Errorf("%s.ShouldFailover() = %v, want %v", reason, got, want)
		}
	}
}

func TestNewProviderError(t *testing.T) {
	cause := errors.New("rate limit exceeded")
	pe := NewProviderError("anthropic", "claude-sonnet-4", cause)

	if pe.Reason != FailoverRateLimit {
		t.Errorf("reason = %s", pe.Reason)
	}
	if pe.Provider != "anthropic" || pe.Model != "claude-sonnet-4" {
		t.Errorf("identity = %s/%s", pe.Provider, pe.Model)
	}
	if !errors.Is(pe, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	msg := pe.Error()
	for _, part := range []string{"rate_limit", "anthropic", "claude-sonnet-4"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q missing %q", msg, part)
		}
	}
}

func TestProviderErrorReclassification(t *testing.T) {
	t.Run("status overrides unknown", func(t *testing.T) {
		pe := NewProviderError("openai", "gpt-4o", errors.New("odd failure")).WithStatus(429)
		if pe.Reason != FailoverRateLimit {
			t.Errorf("reason = %s", pe.Reason)
		}
	})
	t.Run("unknown status keeps text classification", func(t *testing.T) {
		pe := NewProviderError("openai", "gpt-4o", errors.New("rate limit exceeded")).WithStatus(418)
		if pe.Reason != FailoverRateLimit {
			t.Errorf("reason = %s", pe.Reason)
		}
	})
	t.Run("code overrides", func(t *testing.T) {
		pe := NewProviderError("anthropic", "m", errors.New("boom")).WithCode("overloaded_error")
		if pe.Reason != FailoverServerError {
			t.Errorf("reason = %s", pe.Reason)
		}
	})
	t.Run("bad request status", func(t *testing.T) {
		pe := NewProviderError("anthropic", "m", errors.New("boom")).WithStatus(400)
		if pe.Reason != FailoverInvalidRequest {
			t.Errorf("reason = %s", pe.Reason)
		}
		if pe.Reason.IsRetryable() {
			t.Error("invalid_request must not be retryable")
		}
	})
}

func TestIsRetryableUnwrapsChains(t *testing.T) {
	pe := NewProviderError("anthropic", "m", errors.New("invalid api key"))
	wrapped := fmt.Errorf("engine call: %w", pe)

	if IsRetryable(wrapped) {
		t.Error("auth error reported retryable")
	}
	if !ShouldFailover(wrapped) {
		t.Error("auth error should fail over")
	}

	got, ok := AsProviderError(wrapped)
	if !ok || got != pe {
		t.Errorf("AsProviderError = %v, %v", got, ok)
	}

	// Bare errors fall back to text classification; unknown text retries.
	if !IsRetryable(errors.New("socket closed unexpectedly")) {
		t.Error("unknown error should be retryable")
	}
}
