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
	"ChainFL/internal/registry"
)

// Run drives rounds until ctx is canceled or publishing the global model fails.
// Infrastructure failures are logged and retried; only ErrPublishFailed is returned.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.bootstrap(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		c.mu.RLock()
		phase := c.phase
		c.mu.RUnlock()

		var err error

		switch phase {
		case PhaseCollecting:
			err = c.collect(ctx)
		case PhaseClosing, PhaseAggregating:
			err = c.aggregate(ctx)
		case PhasePublished:
			err = c.finish(ctx)
		default:
			return fmt.Errorf("coordinator in unexpected phase %s", phase)
		}

		if errors.Is(err, ErrPublishFailed) {
			c.setPhase(PhaseHalted)
			c.log.Error("publishing global model failed, halting", "round", c.Round(), "error", err)
			c.publish(events.Event{Type: events.CoordinatorHalted, Message: err.Error()})
			return err
		}

		if err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

// bootstrap adopts the ledger's round or starts round 1.
// It retries ledger failures until ctx is done.
func (c *Coordinator) bootstrap(ctx context.Context) error {
	for {
		err := c.adopt(ctx)
		if err == nil {
			c.clearErr()
			return nil
		}

		if errors.Is(err, artifact.ErrNotFound) {
			return fmt.Errorf("no global model in the artifact store, initialize one first:\n%w", err)
		}

		if errors.Is(err, ErrPublishFailed) {
			return err
		}

		if sleepErr := c.fail(ctx, "bootstrap", err); sleepErr != nil {
			return nil
		}
	}
}

// adopt reads the ledger's current round and resumes from its state.
func (c *Coordinator) adopt(ctx context.Context) error {
	current, err := c.deps.Ledger.CurrentRound(ctx)
	if err != nil {
		return fmt.Errorf("read current round:\n%w", err)
	}

	if current == 0 {
		global, err := c.initialGlobal(ctx)
		if err != nil {
			return err
		}

		if err := c.startRound(ctx, 1, global); err != nil {
			return err
		}

		return nil
	}

	info, err := c.deps.Ledger.GetRound(ctx, current)
	if err != nil {
		return fmt.Errorf("read round %d:\n%w", current, err)
	}

	c.setRound(current, info.GlobalModel)

	if n, err := c.deps.Registry.Restore(current); err != nil {
		c.log.Warn("restoring registrations failed", "round", current, "error", err)
	} else if n > 0 {
		c.log.Info("registrations restored", "round", current, "count", n)
	}

	switch info.State {
	case ledger.StateCollecting:
		if err := c.seedRegistry(ctx, current, info.UpdateCount); err != nil {
			return err
		}
		c.log.Info("resuming collection", "round", current, "updates", info.UpdateCount)
		c.openWindow()

	case ledger.StateClosed:
		c.log.Info("resuming aggregation of closed round", "round", current, "updates", info.UpdateCount)
		c.setPhase(PhaseClosing)

	case ledger.StateAggregated:
		c.log.Info("resuming publication of aggregated round", "round", current, "model", info.AggregatedModel.SHA256)
		c.pending = &pendingPublish{
			aggregated: info.AggregatedModel,
			report: journal.Report{
				Round:         current,
				LedgerUpdates: info.UpdateCount,
				Aggregated:    info.AggregatedModel,
				StartedAt:     time.Now(),
			},
		}
		c.setPhase(PhasePublished)
	}

	return nil
}

// seedRegistry registers every client the ledger already holds for round,
// so a restart without a journal still rejects their second submission.
func (c *Coordinator) seedRegistry(ctx context.Context, round uint64, count int) error {
	seeded := 0

	for i := 0; i < count; i++ {
		u, err := c.deps.Ledger.GetUpdate(ctx, round, i)
		if err != nil {
			return fmt.Errorf("read round %d update %d:\n%w", round, i, err)
		}

		entry := registry.Entry{
			SubmissionID: u.TxHash,
			Weights:      u.Weights,
			Size:         u.Size,
			TxHash:       u.TxHash,
			RegisteredAt: u.SubmittedAt,
		}

		if c.deps.Registry.TryRegister(round, u.ClientID, entry) {
			seeded++
		}
	}

	if seeded > 0 {
		c.log.Info("registrations seeded from ledger", "round", round, "count", seeded)
	}

	return nil
}

// initialGlobal pins the canonical global model as an immutable object for round 1.
func (c *Coordinator) initialGlobal(ctx context.Context) (artifact.ContentRef, error) {
	canonical, err := c.deps.Store.Global(ctx)
	if err != nil {
		return artifact.ContentRef{}, fmt.Errorf("read global model:\n%w", err)
	}

	data, err := c.deps.Store.ReadVerified(ctx, canonical)
	if err != nil {
		return artifact.ContentRef{}, fmt.Errorf("read global model:\n%w", err)
	}

	ref, err := c.deps.Store.Write(ctx, data)
	if err != nil {
		return artifact.ContentRef{}, fmt.Errorf("pin global model:\n%w", err)
	}

	return ref, nil
}

// startRound opens round id on the ledger and begins collecting.
// An existing round with that id is adopted.
func (c *Coordinator) startRound(ctx context.Context, id uint64, global artifact.ContentRef) error {
	_, err := c.deps.Ledger.StartRound(ctx, id, global)
	c.deps.Metrics.LedgerWrite(string(ledger.MethodStartRound), err)

	switch {
	case err == nil:
		c.log.Info("round started", "round", id, "global", global.SHA256)
	case errors.Is(err, ledger.ErrRoundExists):
		c.log.Warn("round already exists on the ledger, adopting it", "round", id)

		info, getErr := c.deps.Ledger.GetRound(ctx, id)
		if getErr != nil {
			return fmt.Errorf("read existing round %d:\n%w", id, getErr)
		}
		global = info.GlobalModel
	default:
		return fmt.Errorf("start round %d:\n%w", id, err)
	}

	c.deps.Registry.Advance(id)
	c.setRound(id, global)
	c.openWindow()
	c.publish(events.Event{Type: events.RoundStarted, Round: id, Hash: global.SHA256})

	return nil
}

// openWindow starts a collection window for the current round.
func (c *Coordinator) openWindow() {
	// A close requested outside a window does not carry into the next one.
	select {
	case <-c.closeCh:
	default:
	}

	c.gate.Lock()
	c.mu.Lock()
	c.phase = PhaseCollecting
	c.deadline = time.Now().Add(c.cfg.CollectTimeout)
	round := c.round
	c.mu.Unlock()
	c.gate.Unlock()

	c.deps.Metrics.SetPhase(PhaseCollecting.String(), phaseNames)
	c.log.Debug("collection window open", "round", round, "timeout", c.cfg.CollectTimeout)
}

// collect waits for the window to end and stops admission.
func (c *Coordinator) collect(ctx context.Context) error {
	c.mu.RLock()
	wait := time.Until(c.deadline)
	round := c.round
	c.mu.RUnlock()

	timer := time.NewTimer(max(wait, 0))
	defer timer.Stop()

	trigger := "timeout"

	select {
	case <-timer.C:
	case <-c.closeCh:
		trigger = "manual"
	case <-ctx.Done():
		return ctx.Err()
	}

	// Submissions in flight finish before the phase flips; later ones see Closing.
	c.gate.Lock()
	c.mu.Lock()
	c.phase = PhaseClosing
	c.mu.Unlock()
	c.gate.Unlock()

	c.deps.Metrics.SetPhase(PhaseClosing.String(), phaseNames)
	c.log.Info("collection window closed", "round", round, "trigger", trigger, "registered", c.deps.Registry.Count(round))
	c.publish(events.Event{Type: events.RoundClosed, Round: round, Message: trigger})

	return nil
}
