package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/neilotoole/slogt"

	"ChainFL/internal/artifact"
	"ChainFL/internal/registry"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), slogt.New(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { j.Close() })

	return j
}

// =============================================================================
// Registry persistence
// =============================================================================

func TestEntriesRoundTripThroughRegistry(t *testing.T) {
	j := openTestJournal(t)

	reg := registry.New(j, slogt.New(t))
	base := time.Now()

	reg.TryRegister(3, "a", registry.Entry{SubmissionID: "s1", Size: 10, RegisteredAt: base})
	reg.TryRegister(3, "b", registry.Entry{SubmissionID: "s2", Size: 20, RegisteredAt: base.Add(time.Millisecond)})
	reg.Confirm(3, "a", "0x01")
	reg.Release(3, "b", "s2")
	reg.TryRegister(3, "c", registry.Entry{SubmissionID: "s3", Size: 30, RegisteredAt: base.Add(2 * time.Millisecond)})

	restored := registry.New(j, slogt.New(t))
	if _, err := restored.Restore(3); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got := restored.ListRound(3)
	if len(got) != 2 {
		t.Fatalf("restored %d entries, want 2", len(got))
	}

	if got[0].ClientID != "a" || got[0].TxHash != "0x01" || got[0].Size != 10 {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].ClientID != "c" || got[1].SubmissionID != "s3" {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestPruneBefore(t *testing.T) {
	j := openTestJournal(t)

	j.SaveEntry(registry.Entry{Round: 1, ClientID: "a", RegisteredAt: time.Now()})
	j.SaveEntry(registry.Entry{Round: 2, ClientID: "a", RegisteredAt: time.Now()})

	if err := j.PruneBefore(2); err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}

	old, _ := j.LoadRound(1)
	cur, _ := j.LoadRound(2)

	if len(old) != 0 || len(cur) != 1 {
		t.Errorf("after prune: round1=%d round2=%d, want 0 and 1", len(old), len(cur))
	}
}

// =============================================================================
// Reports
// =============================================================================

func TestReportRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	bits := bitset.New(3)
	bits.Set(0).Set(2)

	want := Report{
		Round:         3,
		LedgerUpdates: 3,
		Included:      2,
		Participation: bits,
		TotalSize:     40,
		Aggregated:    artifact.ContentRef{URI: "objects/x.json", SHA256: "ab"},
		Snapshot:      "history/round_3.json.zst",
		StartedAt:     time.Unix(100, 0),
		PublishedAt:   time.Unix(160, 0),
	}

	if err := j.RecordReport(ctx, want); err != nil {
		t.Fatalf("RecordReport: %v", err)
	}

	got, err := j.Report(ctx, 3)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}

	if got.Included != 2 || got.TotalSize != 40 || got.Aggregated != want.Aggregated || !got.PublishedAt.Equal(want.PublishedAt) {
		t.Errorf("Report = %+v", got)
	}

	idx := got.IncludedIndices()
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 2 {
		t.Errorf("IncludedIndices = %v, want [0 2]", idx)
	}
}

func TestReportMissing(t *testing.T) {
	j := openTestJournal(t)

	if _, err := j.Report(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReportsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for r := uint64(1); r <= 4; r++ {
		j.RecordReport(ctx, Report{Round: r, StartedAt: time.Now(), PublishedAt: time.Now()})
	}

	got, err := j.Reports(ctx, 2)
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}

	if len(got) != 2 || got[0].Round != 4 || got[1].Round != 3 {
		t.Errorf("Reports = %+v", got)
	}
}
