package integration

import (
	"context"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"

	"ChainFL/internal/coordinator"
	"ChainFL/internal/ledger"
)

// TestRoundLifecycle runs two full rounds through the front door, the QUIC
// ledger and the aggregator.
func TestRoundLifecycle(t *testing.T) {
	c := NewCluster(t)
	ctx := context.Background()

	c.WaitForRound(1, 10*time.Second)

	// --- Round 1: three participants, one duplicate ---

	for _, p := range []struct {
		name    string
		weights []float64
		size    uint64
	}{
		{"clinic-a", []float64{1, 1, 1, 1}, 10},
		{"clinic-b", []float64{2, 2, 2, 2}, 30},
		{"clinic-c", []float64{4, 0, 4, 0}, 10},
	} {
		res := c.Submit(p.name, p.weights, p.size)
		if !res.Success || res.Round != 1 || res.TxHash == "" {
			t.Fatalf("submit %s: %+v", p.name, res)
		}
	}

	dup := c.Submit("clinic-a", []float64{9, 9, 9, 9}, 10)
	if dup.Success || dup.Reason != coordinator.ReasonDuplicate {
		t.Fatalf("duplicate submission = %+v", dup)
	}

	if n, _ := c.Ledger().UpdateCount(ctx, 1); n != 3 {
		t.Fatalf("ledger update count = %d, want 3", n)
	}

	if _, err := c.Client().CloseRound(ctx); err != nil {
		t.Fatalf("close round: %v", err)
	}

	c.WaitForRound(2, 10*time.Second)

	// (10*1 + 30*2 + 10*4) / 50, (10*1 + 30*2) / 50
	want := []float64{2.2, 1.4, 2.2, 1.4}

	ref, got := c.GlobalWeights()
	if !floats.EqualApprox(got, want, 1e-12) {
		t.Fatalf("global after round 1 = %v, want %v", got, want)
	}

	info, err := c.Ledger().GetRound(ctx, 1)
	if err != nil {
		t.Fatalf("GetRound(1): %v", err)
	}
	if info.State != ledger.StateAggregated || info.AggregatedModel.SHA256 != ref.SHA256 {
		t.Errorf("round 1 = %+v, want aggregated to %s", info, ref.SHA256)
	}

	next, _ := c.Ledger().GetRound(ctx, 2)
	if next.GlobalModel.SHA256 != ref.SHA256 {
		t.Errorf("round 2 trains from %s, want %s", next.GlobalModel.SHA256, ref.SHA256)
	}

	report, err := c.Client().Report(ctx, 1)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report["included"] != float64(3) || report["totalSize"] != float64(50) {
		t.Errorf("report = %v", report)
	}

	// --- Round 2: a late round-1 submission is refused ---

	late, err := c.Client().SubmitUpdate(ctx, "clinic-d", mustPrepare(t, c, "clinic-d", []float64{1, 1, 1, 1}), 1)
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if late.Success || late.Reason != coordinator.ReasonRoundClosed {
		t.Errorf("late submission = %+v, want round closed", late)
	}

	if res := c.Submit("clinic-a", []float64{3, 3, 3, 3}, 5); !res.Success || res.Round != 2 {
		t.Fatalf("round 2 submit: %+v", res)
	}

	c.Client().CloseRound(ctx)
	c.WaitForRound(3, 10*time.Second)

	if _, got := c.GlobalWeights(); !floats.Equal(got, []float64{3, 3, 3, 3}) {
		t.Errorf("global after round 2 = %v", got)
	}
}

// TestCollectTimeoutClosesRound checks that the window closes on its own.
func TestCollectTimeoutClosesRound(t *testing.T) {
	c := NewCluster(t, WithCollectTimeout(300*time.Millisecond))

	c.WaitForRound(1, 10*time.Second)

	if res := c.Submit("solo", []float64{5, 6, 7, 8}, 1); !res.Success {
		t.Fatalf("submit: %+v", res)
	}

	c.WaitForRound(2, 10*time.Second)

	if _, got := c.GlobalWeights(); !floats.Equal(got, []float64{5, 6, 7, 8}) {
		t.Errorf("global = %v", got)
	}
}

// TestCoordinatorRestartResumesRound restarts the coordinator mid-round: the
// ledger round and the journaled registrations carry over.
func TestCoordinatorRestartResumesRound(t *testing.T) {
	c := NewCluster(t)
	ctx := context.Background()

	c.WaitForRound(1, 10*time.Second)

	if res := c.Submit("clinic-a", []float64{1, 2, 3, 4}, 2); !res.Success {
		t.Fatalf("submit: %+v", res)
	}

	c.StopCoordinator()
	c.StartCoordinator()

	c.WaitForRound(1, 10*time.Second)

	if dup := c.Submit("clinic-a", []float64{0, 0, 0, 0}, 2); dup.Success || dup.Reason != coordinator.ReasonDuplicate {
		t.Fatalf("resubmission after restart = %+v, want duplicate", dup)
	}

	if res := c.Submit("clinic-b", []float64{3, 2, 1, 0}, 2); !res.Success || res.TotalUpdates != 2 {
		t.Fatalf("second participant = %+v", res)
	}

	c.Client().CloseRound(ctx)
	c.WaitForRound(2, 10*time.Second)

	if _, got := c.GlobalWeights(); !floats.Equal(got, []float64{2, 2, 2, 2}) {
		t.Errorf("global = %v, want the average of both participants", got)
	}
}
