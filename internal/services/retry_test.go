package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/harmonia-sync/harmonia/internal/shared"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Run("Transient Failure Is Retried", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("throttled: %w", shared.ErrRateLimited)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("Terminal Failure Is Not Retried", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Do(context.Background(), func() error {
			calls++
			return fmt.Errorf("gone: %w", shared.ErrTrackNotFound)
		})
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Fatalf("expected track not found, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt, got %d", calls)
		}
	})

	t.Run("Attempts Are Bounded", func(t *testing.T) {
		calls := 0
		err := fastPolicy(2).Do(context.Background(), func() error {
			calls++
			return fmt.Errorf("down: %w", shared.ErrPlatformUnavailable)
		})
		if !errors.Is(err, shared.ErrPlatformUnavailable) {
			t.Fatalf("expected platform unavailable, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 attempts, got %d", calls)
		}
	})

	t.Run("Cancelled Context Stops Retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := fastPolicy(5).Do(ctx, func() error {
			return fmt.Errorf("down: %w", shared.ErrPlatformUnavailable)
		})
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}
