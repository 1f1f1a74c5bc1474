package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jfourney/divvy/internal/service"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", ErrValidation, false},
		{"authentication", ErrAuthentication, false},
		{"date range", ErrInvalidDateRange, false},
		{"wrapped validation", fmt.Errorf("submit: %w", ErrValidation), false},
		{"rate limit", ErrRateLimit, true},
		{"network", ErrNetwork, true},
		{"service unavailable", ErrServiceUnavailable, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped network", fmt.Errorf("fetch: %w", ErrNetwork), true},
		{"retryable wrapper true", &RetryableError{Err: errors.New("boom"), Retryable: true}, true},
		{"retryable wrapper false", &RetryableError{Err: errors.New("boom"), Retryable: false}, false},
		{"plain error", errors.New("something else"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func fastOpts() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return nil
	}, fastOpts())
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestWithRetry_RecoversFromTransientError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("fetch: %w", ErrNetwork)
		}
		return nil
	}, fastOpts())
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestWithRetry_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return fmt.Errorf("submit: %w", ErrValidation)
	}, fastOpts())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("WithRetry() error = %v, want ErrValidation", err)
	}
	if errors.Is(err, ErrMaxRetries) {
		t.Error("non-retryable error should not be wrapped in ErrMaxRetries")
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return ErrNetwork
	}, fastOpts())
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("WithRetry() error = %v, want ErrMaxRetries", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestWithRetry_ContextCancellationAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return ErrNetwork
	}, service.RetryOptions{
		MaxAttempts:  5,
		InitialDelay: time.Minute,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestWithRetry_RateLimitUsesMaxDelay(t *testing.T) {
	opts := service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
	calls := 0
	start := time.Now()
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return ErrRateLimit
		}
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < opts.MaxDelay {
		t.Errorf("waited %v before retrying rate limit, want at least %v", elapsed, opts.MaxDelay)
	}
}

func TestWithRetry_AppliesDefaults(t *testing.T) {
	// Zero-valued options fall back to three attempts.
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return &RetryableError{Err: errors.New("flaky"), Retryable: true}
	}, service.RetryOptions{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("WithRetry() error = %v, want ErrMaxRetries", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}
