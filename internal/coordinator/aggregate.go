package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"

	"ChainFL/internal/aggregate"
	"ChainFL/internal/artifact"
	"ChainFL/internal/events"
	"ChainFL/internal/journal"
	"ChainFL/internal/ledger"
	"ChainFL/internal/logger"
)

// pendingPublish is an aggregated model waiting to be recorded and published.
type pendingPublish struct {
	aggregated artifact.ContentRef
	report     journal.Report
}

// collected is the usable part of a round's ledger updates.
type collected struct {
	inputs        []aggregate.Input
	participation *bitset.BitSet // participation marks included ledger indices
	totalSize     uint64
}

// aggregate enumerates the round's ledger updates, aggregates the usable ones
// and stores the result. Failures leave the round unpublished for a retry.
func (c *Coordinator) aggregate(ctx context.Context) error {
	round := c.Round()
	start := time.Now()

	count, err := c.deps.Ledger.UpdateCount(ctx, round)
	if err != nil {
		return c.fail(ctx, "read update count", err)
	}

	if count == 0 {
		c.log.Info("no updates", "round", round)
		return c.nothingToAggregate(ctx, round, "no updates")
	}

	col, err := c.enumerate(ctx, round, count)
	if err != nil {
		return c.fail(ctx, "enumerate updates", err)
	}

	if len(col.inputs) == 0 {
		c.log.Warn("no usable updates", "round", round, "recorded", count)
		return c.nothingToAggregate(ctx, round, "no usable updates")
	}

	c.setPhase(PhaseAggregating)

	global := c.readGlobal(ctx, round)

	result, err := c.deps.Aggregator.Aggregate(ctx, aggregate.Job{
		Round:   round,
		Global:  global,
		Updates: col.inputs,
	})
	if err != nil {
		c.deps.Metrics.AggregationFailed()
		c.publish(events.Event{Type: events.AggregationFailed, Round: round, Message: err.Error()})
		return c.fail(ctx, "aggregate", err)
	}

	data, err := artifact.EncodeWeights(result)
	if err != nil {
		c.deps.Metrics.AggregationFailed()
		return c.fail(ctx, "encode aggregated model", err)
	}

	ref, err := c.deps.Store.Write(ctx, data)
	if err != nil {
		return c.fail(ctx, "write aggregated model", err)
	}

	c.deps.Metrics.Aggregated(len(col.inputs), time.Since(start))

	c.log.Info("round aggregated",
		"round", round,
		"aggregator", c.deps.Aggregator.Name(),
		"included", len(col.inputs),
		"recorded", count,
		"totalSize", col.totalSize,
		"model", ref.SHA256,
		logger.Timed(start),
	)

	c.publish(events.Event{Type: events.RoundAggregated, Round: round, Updates: len(col.inputs), Hash: ref.SHA256})

	c.pending = &pendingPublish{
		aggregated: ref,
		report: journal.Report{
			Round:         round,
			LedgerUpdates: count,
			Included:      len(col.inputs),
			Participation: col.participation,
			TotalSize:     col.totalSize,
			Aggregated:    ref,
			StartedAt:     start,
		},
	}

	c.clearErr()
	c.setPhase(PhasePublished)

	return nil
}

// nothingToAggregate handles a round without usable updates. A round still
// collecting on the ledger gets a new window; a round the ledger already
// closed carries its global model forward so the loop can advance.
func (c *Coordinator) nothingToAggregate(ctx context.Context, round uint64, why string) error {
	info, err := c.deps.Ledger.GetRound(ctx, round)
	if err != nil {
		return c.fail(ctx, "read round", err)
	}

	if info.Collecting() {
		c.publish(events.Event{Type: events.RoundEmpty, Round: round, Message: why})
		c.openWindow()
		return nil
	}

	c.log.Warn("closed round has nothing to aggregate, carrying global model forward", "round", round, "reason", why)

	c.pending = &pendingPublish{
		aggregated: info.GlobalModel,
		report: journal.Report{
			Round:         round,
			LedgerUpdates: info.UpdateCount,
			Aggregated:    info.GlobalModel,
			StartedAt:     time.Now(),
		},
	}
	c.setPhase(PhasePublished)

	return nil
}

// enumerate reads every ledger update of round and keeps the usable ones.
// Missing, malformed and (in strict mode) mismatched artifacts are skipped.
// A client appearing twice contributes only its first update.
func (c *Coordinator) enumerate(ctx context.Context, round uint64, count int) (*collected, error) {
	col := &collected{
		participation: bitset.New(uint(count)),
	}

	seen := make(map[string]bool, count)

	for i := 0; i < count; i++ {
		u, err := c.deps.Ledger.GetUpdate(ctx, round, i)
		if err != nil {
			return nil, fmt.Errorf("read update %d:\n%w", i, err)
		}

		if seen[u.ClientID] {
			c.skip(round, u, "duplicate", nil)
			continue
		}
		seen[u.ClientID] = true

		data, err := c.deps.Store.Read(ctx, u.Weights)
		if errors.Is(err, artifact.ErrNotFound) {
			c.skip(round, u, "missing", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read artifact of %s:\n%w", u.ClientID, err)
		}

		if !u.Weights.Matches(data) {
			if c.cfg.StrictHashes {
				c.skip(round, u, "hash_mismatch", artifact.ErrHashMismatch)
				continue
			}
			c.log.Warn("artifact hash mismatch, using anyway", "round", round, "client", u.ClientID, "uri", u.Weights.URI)
		}

		vec, err := artifact.DecodeWeights(data)
		if err != nil {
			c.skip(round, u, "malformed", err)
			continue
		}

		col.inputs = append(col.inputs, aggregate.Input{
			ClientID: u.ClientID,
			Ref:      u.Weights,
			Vector:   vec,
			Size:     u.Size,
		})
		col.participation.Set(uint(i))
		col.totalSize += u.Size
	}

	return col, nil
}

// skip logs and counts an excluded update.
func (c *Coordinator) skip(round uint64, u ledger.Update, reason string, err error) {
	c.deps.Metrics.Skipped(reason)
	c.log.Warn("skipping update",
		"round", round,
		"index", u.Index,
		"client", u.ClientID,
		"uri", u.Weights.URI,
		"reason", reason,
		"error", err,
	)
}

// readGlobal loads the round's starting model; failures yield an empty vector.
func (c *Coordinator) readGlobal(ctx context.Context, round uint64) aggregate.WeightVector {
	c.mu.RLock()
	ref := c.global
	c.mu.RUnlock()

	data, err := c.deps.Store.ReadVerified(ctx, ref)
	if err != nil {
		c.log.Warn("global model unavailable to aggregator", "round", round, "uri", ref.URI, "error", err)
		return nil
	}

	w, err := artifact.DecodeWeights(data)
	if err != nil {
		c.log.Warn("global model unreadable", "round", round, "error", err)
		return nil
	}

	return w
}
