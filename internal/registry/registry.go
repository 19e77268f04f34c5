// Package registry tracks which clients have submitted in the in-flight round.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ChainFL/internal/artifact"
	"ChainFL/internal/logger"
)

// ErrDuplicateSubmission is returned when a client already submitted in a round.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// Entry is one accepted registration.
type Entry struct {
	SubmissionID string              `json:"submissionId"`
	Round        uint64              `json:"round"`
	ClientID     string              `json:"clientId"`
	Weights      artifact.ContentRef `json:"weights"`
	Size         uint64              `json:"size"`
	TxHash       string              `json:"txHash,omitempty"` // TxHash is set once the ledger accepts the update
	RegisteredAt time.Time           `json:"registeredAt"`
}

// Persister stores registrations so a restarted coordinator keeps rejecting duplicates.
type Persister interface {
	SaveEntry(e Entry) error
	DeleteEntry(round uint64, clientID string) error
	PruneBefore(round uint64) error
	LoadRound(round uint64) ([]Entry, error)
}

// roundTable holds one round's registrations in registration order.
type roundTable struct {
	byClient map[string]int // byClient maps client id to index in order
	order    []Entry
}

// Registry is a per-round duplicate-submission table.
// TryRegister is the only admission point and is atomic.
type Registry struct {
	mu     sync.Mutex
	rounds map[uint64]*roundTable
	store  Persister // store is optional
	log    *slog.Logger
}

// New creates an empty registry. store may be nil.
func New(store Persister, log *slog.Logger) *Registry {
	if log == nil {
		log = logger.Component("registry")
	}

	return &Registry{
		rounds: make(map[uint64]*roundTable),
		store:  store,
		log:    log,
	}
}

// TryRegister records e for (round, clientID) if absent and reports whether it did.
func (r *Registry) TryRegister(round uint64, clientID string, e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.rounds[round]
	if t == nil {
		t = &roundTable{byClient: make(map[string]int)}
		r.rounds[round] = t
	}

	if _, ok := t.byClient[clientID]; ok {
		return false
	}

	e.Round = round
	e.ClientID = clientID
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now()
	}

	t.byClient[clientID] = len(t.order)
	t.order = append(t.order, e)

	r.persist(func(p Persister) error { return p.SaveEntry(e) })

	return true
}

// Confirm attaches the ledger transaction hash to a registration.
func (r *Registry) Confirm(round uint64, clientID, txHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.rounds[round]
	if t == nil {
		return
	}

	i, ok := t.byClient[clientID]
	if !ok {
		return
	}

	t.order[i].TxHash = txHash
	e := t.order[i]

	r.persist(func(p Persister) error { return p.SaveEntry(e) })
}

// Release removes the registration of clientID if it still belongs to submissionID.
// A registration whose ledger write failed is released so the client may retry.
func (r *Registry) Release(round uint64, clientID, submissionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.rounds[round]
	if t == nil {
		return false
	}

	i, ok := t.byClient[clientID]
	if !ok || t.order[i].SubmissionID != submissionID {
		return false
	}

	t.order = append(t.order[:i], t.order[i+1:]...)
	delete(t.byClient, clientID)

	for j := i; j < len(t.order); j++ {
		t.byClient[t.order[j].ClientID] = j
	}

	r.persist(func(p Persister) error { return p.DeleteEntry(round, clientID) })

	return true
}

// Count returns the number of registrations in round.
func (r *Registry) Count(round uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := r.rounds[round]; t != nil {
		return len(t.order)
	}

	return 0
}

// Has reports whether clientID is registered in round.
func (r *Registry) Has(round uint64, clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.rounds[round]
	if t == nil {
		return false
	}

	_, ok := t.byClient[clientID]

	return ok
}

// ListRound returns a copy of round's registrations in registration order.
func (r *Registry) ListRound(round uint64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.rounds[round]
	if t == nil {
		return nil
	}

	out := make([]Entry, len(t.order))
	copy(out, t.order)

	return out
}

// Advance drops every round before newRound.
func (r *Registry) Advance(newRound uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for round := range r.rounds {
		if round < newRound {
			delete(r.rounds, round)
		}
	}

	r.persist(func(p Persister) error { return p.PruneBefore(newRound) })
}

// Restore reloads round's registrations from the persister.
func (r *Registry) Restore(round uint64) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	entries, err := r.store.LoadRound(round)
	if err != nil {
		return 0, fmt.Errorf("load round %d registrations:\n%w", round, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := &roundTable{byClient: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := t.byClient[e.ClientID]; dup {
			continue
		}
		t.byClient[e.ClientID] = len(t.order)
		t.order = append(t.order, e)
	}

	r.rounds[round] = t

	return len(t.order), nil
}

// persist writes through to the persister; failures are logged, the in-memory table stays authoritative.
func (r *Registry) persist(fn func(Persister) error) {
	if r.store == nil {
		return
	}

	if err := fn(r.store); err != nil {
		r.log.Warn("registry persistence failed", "error", err)
	}
}
