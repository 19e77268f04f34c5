// Package coordinator drives federated learning rounds against the ledger:
// it admits client updates, closes the collection window, aggregates the
// recorded updates and publishes the new global model before opening the next round.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ChainFL/internal/aggregate"
	"ChainFL/internal/artifact"
	"ChainFL/internal/events"
	"ChainFL/internal/journal"
	"ChainFL/internal/ledger"
	"ChainFL/internal/logger"
	"ChainFL/internal/metrics"
	"ChainFL/internal/registry"
)

// ErrPublishFailed is returned by Run when the global model could not be replaced.
var ErrPublishFailed = artifact.ErrPublishFailed

// Phase is the coordinator's position in the round state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCollecting
	PhaseClosing
	PhaseAggregating
	PhasePublished
	PhaseHalted
)

var phaseNames = []string{"idle", "collecting", "closing", "aggregating", "published", "halted"}

// String returns the phase name.
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Config holds round timing and verification policy.
type Config struct {
	CollectTimeout time.Duration // CollectTimeout is the collection window length
	RoundDelay     time.Duration // RoundDelay is the pause between publishing and the next window
	RetryDelay     time.Duration // RetryDelay is the wait before retrying a failed step
	StrictHashes   bool          // StrictHashes drops updates whose artifact digest does not match
}

// DefaultConfig returns the standard round timings.
func DefaultConfig() Config {
	return Config{
		CollectTimeout: 15 * time.Second,
		RoundDelay:     5 * time.Second,
		RetryDelay:     10 * time.Second,
		StrictHashes:   true,
	}
}

// Recorder stores per-round reports.
type Recorder interface {
	RecordReport(ctx context.Context, r journal.Report) error
}

// Deps are the collaborators a coordinator orchestrates.
type Deps struct {
	Ledger     ledger.Ledger
	Store      *artifact.Store
	Registry   *registry.Registry
	Aggregator aggregate.Aggregator
	Recorder   Recorder         // Recorder is optional
	Events     *events.Bus      // Events is optional
	Metrics    *metrics.Metrics // Metrics is optional
	Logger     *slog.Logger
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Round           uint64              `json:"round"`
	Phase           string              `json:"phase"`
	Registered      int                 `json:"registered"`
	CollectDeadline time.Time           `json:"collectDeadline,omitzero"`
	GlobalModel     artifact.ContentRef `json:"globalModel"`
	LastReport      *journal.Report     `json:"lastReport,omitempty"`
	LastError       string              `json:"lastError,omitempty"`
}

// Coordinator runs one round at a time. Submit may be called concurrently with Run.
type Coordinator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// gate is held shared by submissions while they check the phase and write
	// to the ledger, and exclusively by the loop when it stops admission.
	gate sync.RWMutex

	mu         sync.RWMutex // mu protects the fields below
	phase      Phase
	round      uint64
	global     artifact.ContentRef // global is the model the current round trains from
	deadline   time.Time
	lastReport *journal.Report
	lastErr    string

	closeCh chan struct{} // closeCh carries manual close requests
	pending *pendingPublish
}

// New creates a coordinator. Run must be called to start it.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Ledger == nil || deps.Store == nil || deps.Registry == nil || deps.Aggregator == nil {
		return nil, errors.New("ledger, store, registry and aggregator are required")
	}

	def := DefaultConfig()
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = def.CollectTimeout
	}
	if cfg.RoundDelay < 0 {
		cfg.RoundDelay = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	if deps.Logger == nil {
		deps.Logger = logger.Component("coordinator")
	}

	return &Coordinator{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger,
		closeCh: make(chan struct{}, 1),
	}, nil
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		Round:       c.round,
		Phase:       c.phase.String(),
		Registered:  c.deps.Registry.Count(c.round),
		GlobalModel: c.global,
		LastReport:  c.lastReport,
		LastError:   c.lastErr,
	}

	if c.phase == PhaseCollecting {
		s.CollectDeadline = c.deadline
	}

	return s
}

// CloseNow ends the current collection window early.
// It reports false when no window is open.
func (c *Coordinator) CloseNow() bool {
	c.mu.RLock()
	collecting := c.phase == PhaseCollecting
	c.mu.RUnlock()

	if !collecting {
		return false
	}

	select {
	case c.closeCh <- struct{}{}:
	default:
	}

	return true
}

// Round returns the round the coordinator is working on.
func (c *Coordinator) Round() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.round
}

// setPhase records a transition.
func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	round := c.round
	c.mu.Unlock()

	c.deps.Metrics.SetPhase(p.String(), phaseNames)
	c.log.Debug("phase changed", "round", round, "phase", p)
}

// setRound adopts round as the current round.
func (c *Coordinator) setRound(round uint64, global artifact.ContentRef) {
	c.mu.Lock()
	c.round = round
	c.global = global
	c.mu.Unlock()

	c.deps.Metrics.SetRound(round)
}

// fail records err as the last error and waits RetryDelay.
func (c *Coordinator) fail(ctx context.Context, step string, err error) error {
	c.mu.Lock()
	c.lastErr = fmt.Sprintf("%s: %v", step, err)
	round := c.round
	c.mu.Unlock()

	c.log.Error(step+" failed, retrying", "round", round, "retryIn", c.cfg.RetryDelay, "error", err)

	return sleep(ctx, c.cfg.RetryDelay)
}

// clearErr resets the last error after a successful step.
func (c *Coordinator) clearErr() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
}

// publish emits an event stamped with the current round when e.Round is unset.
func (c *Coordinator) publish(e events.Event) {
	if e.Round == 0 {
		e.Round = c.Round()
	}
	c.deps.Events.Publish(e)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
