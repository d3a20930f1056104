// File: internal/infra/adapters/ai/retry_test.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/genai"
)

func fastRetryCfg(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2,
		Operation:    "test",
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	start := time.Now()
	out, err := Retry(context.Background(), RetryConfig{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2},
		func(ctx context.Context) (string, error) {
			calls++
			return "hello", nil
		})
	if err != nil || out != "hello" {
		t.Fatalf("got (%q, %v)", out, err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	// an InitialDelay of an hour proves success never sleeps
	if time.Since(start) > time.Second {
		t.Fatal("success path must not delay")
	}
}

func TestRetry_TransientFailuresThenSuccess(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), fastRetryCfg(3), func(ctx context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, errors.New("model is overloaded, try again")
		}
		return 42, nil
	})
	if err != nil || out != 42 {
		t.Fatalf("got (%d, %v)", out, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	last := errors.New("503 service unavailable")
	calls := 0
	_, err := Retry(context.Background(), fastRetryCfg(2), func(ctx context.Context) (string, error) {
		calls++
		return "", last
	})
	if calls != 3 { // initial attempt + 2 retries
		t.Fatalf("calls = %d, want 3", calls)
	}
	if err != last {
		t.Fatalf("exhaustion must return the last error unchanged, got %v", err)
	}
}

func TestRetry_NonTransientFailsImmediately(t *testing.T) {
	boom := errors.New("invalid api key")
	calls := 0
	_, err := Retry(context.Background(), fastRetryCfg(3), func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if err != boom {
		t.Fatalf("error must pass through unchanged, got %v", err)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	_, err := Retry(ctx, cfg, func(ctx context.Context) (string, error) {
		return "", errors.New("overloaded")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffDelay_ExponentialWithCap(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, w := range want {
		if got := backoffDelay(cfg, attempt); got != w {
			t.Fatalf("attempt %d: delay = %v, want %v", attempt, got, w)
		}
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503 text", errors.New("got 503 from upstream"), true},
		{"overloaded", errors.New("The model is Overloaded"), true},
		{"unavailable", errors.New("service UNAVAILABLE right now"), true},
		{"wrapped hint", fmt.Errorf("chat: %w", errors.New("backend unavailable")), true},
		{"auth error", errors.New("invalid api key"), false},
		{"quota", errors.New("429 resource exhausted"), false},
		{"api 503", genai.APIError{Code: 503, Message: "try later"}, true},
		{"api 400", genai.APIError{Code: 400, Message: "bad request"}, false},
		{"wrapped api 503", fmt.Errorf("chat: %w", genai.APIError{Code: 503}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
