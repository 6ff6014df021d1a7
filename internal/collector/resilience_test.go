package collector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
)

func TestHostLimiters_WaitSerializesBurstTraffic(t *testing.T) {
	limiters := collector.NewHostLimiters(2) // burst = 4
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := limiters.Wait(ctx, "example.com"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// 6 tokens against a burst-4/rps-2 bucket must take noticeably
	// longer than an unthrottled loop.
	if time.Since(start) < 400*time.Millisecond {
		t.Error("expected rate limiting to introduce a delay past the burst")
	}
}

func TestHostLimiters_SeparateHostsDoNotShareBudget(t *testing.T) {
	limiters := collector.NewHostLimiters(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := limiters.Wait(ctx, "a.example.com"); err != nil {
		t.Fatalf("Wait(a): %v", err)
	}
	if err := limiters.Wait(ctx, "b.example.com"); err != nil {
		t.Fatalf("Wait(b): %v", err)
	}
}

func TestBreakers_ExecutePassesThroughResultOnSuccess(t *testing.T) {
	breakers := collector.NewBreakers()
	result, err := breakers.Execute("example.com", func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
}

func TestBreakers_TripsAfterConsecutiveFailures(t *testing.T) {
	breakers := collector.NewBreakers()
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, _ = breakers.Execute("flaky.example.com", func() (interface{}, error) {
			return nil, boom
		})
	}

	_, err := breakers.Execute("flaky.example.com", func() (interface{}, error) {
		return "should not run", nil
	})
	if err == nil {
		t.Fatal("expected the breaker to be open after 5 consecutive failures")
	}
}

func TestRetryTransient_RetriesOnlyRetryableErrors(t *testing.T) {
	attempts := 0
	err := collector.RetryTransient(context.Background(), func() error {
		attempts++
		return &collector.Error{Kind: collector.KindAuth, SourceMethod: collector.SourceBotListing, Err: errors.New("nope")}
	})
	if err == nil {
		t.Fatal("expected an error to propagate")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (auth errors are not retryable)", attempts)
	}
}

func TestRetryTransient_RetriesTransientUpToThreeAttempts(t *testing.T) {
	attempts := 0
	err := collector.RetryTransient(context.Background(), func() error {
		attempts++
		return &collector.Error{Kind: collector.KindTransient, SourceMethod: collector.SourceBotListing, Err: errors.New("flaky")}
	})
	if err == nil {
		t.Fatal("expected an error once the retry budget is exhausted")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryTransient_SucceedsAfterTransientRetry(t *testing.T) {
	attempts := 0
	err := collector.RetryTransient(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return &collector.Error{Kind: collector.KindTransient, SourceMethod: collector.SourceBotListing, Err: errors.New("flaky")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryTransient: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
