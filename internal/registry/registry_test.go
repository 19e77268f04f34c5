package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/neilotoole/slogt"
)

// memPersister is an in-memory Persister.
type memPersister struct {
	mu      sync.Mutex
	entries map[uint64]map[string]Entry
	pruned  uint64
}

func newMemPersister() *memPersister {
	return &memPersister{entries: make(map[uint64]map[string]Entry)}
}

func (m *memPersister) SaveEntry(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[e.Round] == nil {
		m.entries[e.Round] = make(map[string]Entry)
	}
	m.entries[e.Round][e.ClientID] = e

	return nil
}

func (m *memPersister) DeleteEntry(round uint64, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries[round], clientID)

	return nil
}

func (m *memPersister) PruneBefore(round uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for r := range m.entries {
		if r < round {
			delete(m.entries, r)
		}
	}
	m.pruned = round

	return nil
}

func (m *memPersister) LoadRound(round uint64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries[round] {
		out = append(out, e)
	}

	return out, nil
}

// =============================================================================
// Admission
// =============================================================================

func TestTryRegisterRejectsDuplicate(t *testing.T) {
	r := New(nil, slogt.New(t))

	if !r.TryRegister(5, "client_1", Entry{SubmissionID: "s1"}) {
		t.Fatal("first registration rejected")
	}

	if r.TryRegister(5, "client_1", Entry{SubmissionID: "s2"}) {
		t.Fatal("duplicate registration accepted")
	}

	if n := r.Count(5); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	// Same client in another round is independent.
	if !r.TryRegister(6, "client_1", Entry{SubmissionID: "s3"}) {
		t.Error("registration in next round rejected")
	}
}

func TestTryRegisterConcurrent(t *testing.T) {
	r := New(nil, slogt.New(t))

	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.TryRegister(1, "same", Entry{SubmissionID: fmt.Sprint(i)}) {
				wins.Add(1)
			}
		}(i)
	}

	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("%d concurrent registrations won, want 1", wins.Load())
	}
}

func TestListRoundKeepsOrder(t *testing.T) {
	r := New(nil, slogt.New(t))

	for _, c := range []string{"c", "a", "b"} {
		r.TryRegister(2, c, Entry{SubmissionID: c})
	}

	got := r.ListRound(2)
	if len(got) != 3 || got[0].ClientID != "c" || got[1].ClientID != "a" || got[2].ClientID != "b" {
		t.Fatalf("ListRound = %+v", got)
	}

	got[0].ClientID = "mutated"
	if r.ListRound(2)[0].ClientID != "c" {
		t.Error("ListRound returned internal slice")
	}
}

// =============================================================================
// Release and advance
// =============================================================================

func TestReleaseRequiresOwningSubmission(t *testing.T) {
	r := New(nil, slogt.New(t))

	r.TryRegister(1, "a", Entry{SubmissionID: "s-a"})
	r.TryRegister(1, "b", Entry{SubmissionID: "s-b"})
	r.TryRegister(1, "c", Entry{SubmissionID: "s-c"})

	if r.Release(1, "a", "other") {
		t.Fatal("released with wrong submission id")
	}

	if !r.Release(1, "a", "s-a") {
		t.Fatal("Release failed")
	}

	if r.Has(1, "a") {
		t.Error("client still registered after release")
	}

	// Index bookkeeping must survive removal from the front.
	if !r.Release(1, "c", "s-c") {
		t.Fatal("Release of shifted entry failed")
	}

	if got := r.ListRound(1); len(got) != 1 || got[0].ClientID != "b" {
		t.Errorf("ListRound = %+v", got)
	}

	if !r.TryRegister(1, "a", Entry{SubmissionID: "s-a2"}) {
		t.Error("re-registration after release rejected")
	}
}

func TestAdvanceDropsOlderRounds(t *testing.T) {
	p := newMemPersister()
	r := New(p, slogt.New(t))

	r.TryRegister(3, "a", Entry{})
	r.TryRegister(4, "a", Entry{})
	r.Advance(4)

	if r.Count(3) != 0 {
		t.Error("round 3 survived Advance(4)")
	}
	if r.Count(4) != 1 {
		t.Error("round 4 dropped by Advance(4)")
	}
	if p.pruned != 4 {
		t.Errorf("persister pruned before %d, want 4", p.pruned)
	}
}

// =============================================================================
// Persistence
// =============================================================================

func TestRestoreFromPersister(t *testing.T) {
	p := newMemPersister()

	r1 := New(p, slogt.New(t))
	r1.TryRegister(7, "a", Entry{SubmissionID: "1"})
	r1.TryRegister(7, "b", Entry{SubmissionID: "2"})
	r1.Confirm(7, "b", "0xabc")

	r2 := New(p, slogt.New(t))

	n, err := r2.Restore(7)
	if err != nil || n != 2 {
		t.Fatalf("Restore = %d, %v", n, err)
	}

	if r2.TryRegister(7, "a", Entry{}) {
		t.Error("restored client accepted again")
	}

	for _, e := range r2.ListRound(7) {
		if e.ClientID == "b" && e.TxHash != "0xabc" {
			t.Errorf("confirmed tx hash lost: %+v", e)
		}
	}
}
