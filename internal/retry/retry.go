package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	Attempts   int           // Attempts is the total number of tries, including the first
	Initial    time.Duration // Initial is the delay before the first retry
	Max        time.Duration // Max caps the delay between retries
	Multiplier float64       // Multiplier grows the delay after each retry
	Jitter     float64       // Jitter is the relative randomization, 0.1 means ±10%
}

// Default returns the policy used for ledger calls.
func Default() Policy {
	return Policy{
		Attempts:   3,
		Initial:    200 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// normalized fills zero fields with defaults.
func (p Policy) normalized() Policy {
	d := Default()

	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = d.Jitter
	}

	return p
}

// Do runs op until it succeeds, retryIf rejects the error, attempts run out or ctx ends.
// A nil retryIf retries every error. The last error is returned.
func Do(ctx context.Context, p Policy, retryIf func(error) bool, op func() error) error {
	p = p.normalized()
	backoff := p.Initial

	var err error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}

		if retryIf != nil && !retryIf(err) {
			return err
		}

		if attempt == p.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.jitter(backoff)):
		}

		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff > p.Max {
			backoff = p.Max
		}
	}

	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, retryIf func(error) bool, op func() (T, error)) (T, error) {
	var out T

	err := Do(ctx, p, retryIf, func() error {
		v, err := op()
		if err != nil {
			return err
		}

		out = v

		return nil
	})

	return out, err
}

// jitter randomizes d by ±Jitter.
func (p Policy) jitter(d time.Duration) time.Duration {
	if p.Jitter == 0 {
		return d
	}

	spread := float64(d) * p.Jitter

	return time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
}
