package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

// fastPolicy keeps test delays short.
func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

// TestDoSucceedsAfterRetries checks that a transient failure is retried.
func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0

	err := Do(context.Background(), fastPolicy(3), nil, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// TestDoStopsOnPermanentError checks that retryIf short-circuits.
func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	err := Do(context.Background(), fastPolicy(5), func(err error) bool {
		return errors.Is(err, errTransient)
	}, func() error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want permanent", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// TestDoExhaustsAttempts checks the last error is returned after all attempts.
func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0

	err := Do(context.Background(), fastPolicy(3), nil, func() error {
		calls++
		return errTransient
	})

	if !errors.Is(err, errTransient) {
		t.Fatalf("err = %v, want transient", err)
	}

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// TestDoHonorsContext checks that a cancelled context stops retrying.
func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	p := Policy{Attempts: 5, Initial: time.Hour, Max: time.Hour}

	_ = Do(ctx, p, nil, func() error {
		calls++
		return errTransient
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// TestValue checks the generic helper returns the successful value.
func TestValue(t *testing.T) {
	calls := 0

	v, err := Value(context.Background(), fastPolicy(2), nil, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 7, nil
	})

	if err != nil || v != 7 {
		t.Fatalf("Value = %d, %v; want 7, nil", v, err)
	}
}
