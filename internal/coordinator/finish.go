package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChainFL/internal/artifact"
	"ChainFL/internal/events"
	"ChainFL/internal/journal"
	"ChainFL/internal/ledger"
)

// finish records the aggregated model on the ledger, publishes it as the
// canonical global model, archives it and opens the next round.
// Ledger steps already applied are treated as done, so a retry resumes safely.
func (c *Coordinator) finish(ctx context.Context) error {
	p := c.pending
	if p == nil {
		return fmt.Errorf("no aggregated model pending for round %d", c.Round())
	}

	round := c.Round()

	aggregated, err := c.record(ctx, round, p.aggregated)
	if err != nil {
		return c.fail(ctx, "record aggregated model", err)
	}
	p.aggregated = aggregated
	p.report.Aggregated = aggregated

	if _, err := c.deps.Store.PublishGlobal(ctx, aggregated); err != nil {
		return fmt.Errorf("round %d:\n%w", round, err)
	}

	c.deps.Metrics.Published()
	c.log.Info("global model published", "round", round, "model", aggregated.SHA256)
	c.publish(events.Event{Type: events.ModelPublished, Round: round, Hash: aggregated.SHA256})

	if snap, err := c.deps.Store.Snapshot(ctx, round, aggregated); err != nil {
		c.log.Warn("snapshot failed", "round", round, "error", err)
	} else {
		p.report.Snapshot = snap.URI
	}

	p.report.PublishedAt = time.Now()
	c.recordReport(ctx, p.report)

	next := round + 1
	if err := c.startRound(ctx, next, aggregated); err != nil {
		return c.fail(ctx, "start next round", err)
	}

	c.pending = nil
	c.clearErr()

	// The window opened by startRound begins after the inter-round pause.
	if err := sleep(ctx, c.cfg.RoundDelay); err != nil {
		return err
	}
	c.mu.Lock()
	c.deadline = time.Now().Add(c.cfg.CollectTimeout)
	c.mu.Unlock()

	return nil
}

// record closes the round and stores the aggregated ref on the ledger.
// If the ledger already holds a different aggregated model, that one wins.
func (c *Coordinator) record(ctx context.Context, round uint64, ref artifact.ContentRef) (artifact.ContentRef, error) {
	_, err := c.deps.Ledger.CloseRound(ctx, round)
	c.deps.Metrics.LedgerWrite(string(ledger.MethodCloseRound), err)

	switch {
	case err == nil:
		c.log.Info("round closed on ledger", "round", round)
	case errors.Is(err, ledger.ErrAlreadyClosed):
		c.log.Debug("round already closed on ledger", "round", round)
	default:
		return artifact.ContentRef{}, fmt.Errorf("close round:\n%w", err)
	}

	receipt, err := c.deps.Ledger.StoreAggregated(ctx, round, ref)
	c.deps.Metrics.LedgerWrite(string(ledger.MethodStoreAggregated), err)

	switch {
	case err == nil:
		c.log.Info("aggregated model recorded", "round", round, "tx", receipt.TxHash, "gasUsed", receipt.GasUsed)
		return ref, nil
	case errors.Is(err, ledger.ErrAlreadyAggregated):
	default:
		return artifact.ContentRef{}, fmt.Errorf("store aggregated:\n%w", err)
	}

	info, err := c.deps.Ledger.GetRound(ctx, round)
	if err != nil {
		return artifact.ContentRef{}, fmt.Errorf("read round:\n%w", err)
	}

	if !info.AggregatedModel.IsZero() && info.AggregatedModel.SHA256 != ref.SHA256 {
		c.log.Warn("ledger holds a different aggregated model, publishing the ledger's",
			"round", round, "ours", ref.SHA256, "ledger", info.AggregatedModel.SHA256)
		return info.AggregatedModel, nil
	}

	return ref, nil
}

// recordReport stores the round report; failures are logged only.
func (c *Coordinator) recordReport(ctx context.Context, r journal.Report) {
	c.mu.Lock()
	c.lastReport = &r
	c.mu.Unlock()

	if c.deps.Recorder == nil {
		return
	}

	if err := c.deps.Recorder.RecordReport(ctx, r); err != nil {
		c.log.Warn("recording round report failed", "round", r.Round, "error", err)
	}
}
