package ledger

import (
	"context"
	"log/slog"

	"ChainFL/internal/artifact"
	"ChainFL/internal/retry"
)

// Retrying wraps a Ledger and retries transient failures.
// Contract rejections pass through untouched.
type Retrying struct {
	inner  Ledger
	policy retry.Policy
	log    *slog.Logger
}

var _ Ledger = (*Retrying)(nil)

// WithRetry wraps l with policy.
func WithRetry(l Ledger, policy retry.Policy, log *slog.Logger) *Retrying {
	if log == nil {
		log = slog.Default()
	}

	return &Retrying{inner: l, policy: policy, log: log}
}

// do runs op under the retry policy, logging each transient failure.
func do[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	return retry.Value(ctx, r.policy, IsTransient, func() (T, error) {
		v, err := fn()
		if err != nil && IsTransient(err) {
			r.log.Warn("ledger call failed, retrying", "op", op, "error", err)
		}
		return v, err
	})
}

func (r *Retrying) StartRound(ctx context.Context, id RoundID, global artifact.ContentRef) (TxReceipt, error) {
	return do(ctx, r, "startRound", func() (TxReceipt, error) { return r.inner.StartRound(ctx, id, global) })
}

func (r *Retrying) CurrentRound(ctx context.Context) (RoundID, error) {
	return do(ctx, r, "currentRound", func() (RoundID, error) { return r.inner.CurrentRound(ctx) })
}

func (r *Retrying) GetRound(ctx context.Context, id RoundID) (RoundInfo, error) {
	return do(ctx, r, "getRound", func() (RoundInfo, error) { return r.inner.GetRound(ctx, id) })
}

func (r *Retrying) SubmitUpdate(ctx context.Context, sub Submission) (TxReceipt, error) {
	return do(ctx, r, "submitUpdate", func() (TxReceipt, error) { return r.inner.SubmitUpdate(ctx, sub) })
}

func (r *Retrying) UpdateCount(ctx context.Context, round RoundID) (int, error) {
	return do(ctx, r, "getUpdateCount", func() (int, error) { return r.inner.UpdateCount(ctx, round) })
}

func (r *Retrying) GetUpdate(ctx context.Context, round RoundID, index int) (Update, error) {
	return do(ctx, r, "getUpdate", func() (Update, error) { return r.inner.GetUpdate(ctx, round, index) })
}

func (r *Retrying) CloseRound(ctx context.Context, round RoundID) (TxReceipt, error) {
	return do(ctx, r, "closeRound", func() (TxReceipt, error) { return r.inner.CloseRound(ctx, round) })
}

func (r *Retrying) StoreAggregated(ctx context.Context, round RoundID, ref artifact.ContentRef) (TxReceipt, error) {
	return do(ctx, r, "storeAggregated", func() (TxReceipt, error) { return r.inner.StoreAggregated(ctx, round, ref) })
}
