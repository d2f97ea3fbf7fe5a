package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := E(KindTierForbidden, "tier %s cannot access model", "free")
	if KindOf(err) != KindTierForbidden {
		t.Errorf("KindOf = %s", KindOf(err))
	}

	wrapped := fmt.Errorf("outer: %w", Wrap(KindRateLimited, errors.New("429"), "rate limited"))
	if KindOf(wrapped) != KindRateLimited {
		t.Errorf("KindOf through wrapping = %s", KindOf(wrapped))
	}

	if KindOf(context.DeadlineExceeded) != KindDeadlineExceeded {
		t.Errorf("deadline should classify as deadline_exceeded")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Errorf("unclassified errors are internal")
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrKind
	}{
		{429, KindRateLimited},
		{401, KindAuthenticationFailed},
		{403, KindAuthenticationFailed},
		{404, KindModelNotFound},
		{400, KindValidation},
		{422, KindValidation},
		{500, KindProviderUnavailable},
		{503, KindProviderUnavailable},
		{418, KindInternal},
	}
	for _, tc := range cases {
		err := &StatusError{StatusCode: tc.status, Body: "x"}
		got := ClassifyStatus("openai", err)
		if got.Kind != tc.want {
			t.Errorf("status %d classified as %s, want %s", tc.status, got.Kind, tc.want)
		}
	}
}

func TestClassifyStatusRetryAfter(t *testing.T) {
	se := &StatusError{StatusCode: 429, Body: "slow down"}
	se.ParseRetryAfter("30")
	got := ClassifyStatus("mistral", se)
	if got.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", got.RetryAfter)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(KindValidation) || Retryable(KindCostLimitExceeded) || Retryable(KindTierForbidden) {
		t.Error("gate refusals and validation must not be retried")
	}
	for _, k := range []ErrKind{KindRateLimited, KindDeadlineExceeded, KindInternal, KindProviderUnavailable} {
		if !Retryable(k) {
			t.Errorf("%s should trigger fallback", k)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	se := &StatusError{}
	se.ParseRetryAfter("60")
	if se.RetryAfterSecs != 60 {
		t.Errorf("RetryAfterSecs = %d, want 60", se.RetryAfterSecs)
	}
	se = &StatusError{}
	se.ParseRetryAfter("not-a-number")
	if se.RetryAfterSecs != 0 {
		t.Errorf("invalid Retry-After should be ignored")
	}
}
