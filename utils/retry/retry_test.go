package retry

import (
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	result, err := WithRetry(func() (interface{}, error) {
		calls++
		return "ok", nil
	}, Is429Error, DefaultRetryConfig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Fatalf("expected one call returning ok, got %d calls, result %v", calls, result)
	}
}

func TestWithRetryStopsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := WithRetry(func() (interface{}, error) {
		calls++
		return nil, boom
	}, Is429Error, DefaultRetryConfig)
	if err != boom {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call for a non-retryable error, got %d", calls)
	}
}

func TestWithRetryRetriesOn429ThenSucceeds(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Factor: 1}
	result, err := WithRetry(func() (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("429 rate limit exceeded")
		}
		return "recovered", nil
	}, Is429Error, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" || calls != 3 {
		t.Fatalf("expected recovery on the third call, got %d calls, result %v", calls, result)
	}
}

func TestWithRetryExhaustsRetriesAndReturnsWrappedError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Factor: 1}
	calls := 0
	_, err := WithRetry(func() (interface{}, error) {
		calls++
		return nil, errors.New("429 too many requests")
	}, Is429Error, cfg)
	if err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
	if calls != cfg.MaxRetries+1 {
		t.Fatalf("expected %d calls (initial + retries), got %d", cfg.MaxRetries+1, calls)
	}
}

func TestIs429ErrorMatchesKnownRateLimitPhrasing(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"HTTP 429", true},
		{"rate limit exceeded", true},
		{"quota exceeded for this month", true},
		{"too many requests, slow down", true},
		{"invalid api key", false},
	}
	for _, tc := range cases {
		if got := Is429Error(errors.New(tc.msg)); got != tc.want {
			t.Errorf("Is429Error(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
	if Is429Error(nil) {
		t.Errorf("Is429Error(nil) should be false")
	}
}

func TestExtractRetryTimeParsesKnownPhrasing(t *testing.T) {
	cases := []struct {
		msg  string
		want time.Duration
	}{
		{"please retry in 18s", 18 * time.Second},
		{"retry after 30 seconds", 30 * time.Second},
		{"no timing hint here", 0},
	}
	for _, tc := range cases {
		if got := extractRetryTime(tc.msg); got != tc.want {
			t.Errorf("extractRetryTime(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}
