package contract

import (
	"context"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ChainFL/internal/artifact"
	"ChainFL/internal/ledger"
	"ChainFL/internal/storage"
)

// =============================================================================
// Helpers
// =============================================================================

type fixture struct {
	contract *Contract
	owner    *Local
	client   *Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ownerPub, _, _ := ed25519.GenerateKey(nil)
	clientPub, _, _ := ed25519.GenerateKey(nil)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c, err := New(db, Options{
		Owner: ownerPub,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{contract: c, owner: c.As(ownerPub), client: c.As(clientPub)}
}

func ref(content string) artifact.ContentRef {
	hash := artifact.HashBytes([]byte(content))
	return artifact.ContentRef{URI: "objects/" + hash + ".json", SHA256: hash}
}

func submit(t *testing.T, l *Local, round uint64, clientID string, size uint64) ledger.TxReceipt {
	t.Helper()

	r, err := l.SubmitUpdate(context.Background(), ledger.Submission{
		Round:    round,
		ClientID: clientID,
		Weights:  ref(clientID),
		Size:     size,
	})
	if err != nil {
		t.Fatalf("SubmitUpdate(%s): %v", clientID, err)
	}

	return r
}

// =============================================================================
// Round lifecycle
// =============================================================================

func TestRoundLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cur, err := f.owner.CurrentRound(ctx)
	if err != nil || cur != 0 {
		t.Fatalf("CurrentRound = %d, %v; want 0", cur, err)
	}

	if _, err := f.owner.StartRound(ctx, 1, ref("global-0")); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	submit(t, f.client, 1, "a", 10)
	submit(t, f.client, 1, "b", 20)

	n, err := f.owner.UpdateCount(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("UpdateCount = %d, %v; want 2", n, err)
	}

	u, err := f.owner.GetUpdate(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetUpdate: %v", err)
	}
	if u.ClientID != "b" || u.Size != 20 || u.Index != 1 || u.Weights != ref("b") {
		t.Errorf("GetUpdate = %+v", u)
	}
	if u.TxHash == "" || u.Sender == "" || u.SubmittedAt.IsZero() {
		t.Errorf("update missing tx metadata: %+v", u)
	}

	if _, err := f.owner.CloseRound(ctx, 1); err != nil {
		t.Fatalf("CloseRound: %v", err)
	}

	info, _ := f.owner.GetRound(ctx, 1)
	if info.State != ledger.StateClosed || info.ClosedAt.IsZero() {
		t.Errorf("round after close = %+v", info)
	}

	if _, err := f.owner.StoreAggregated(ctx, 1, ref("agg-1")); err != nil {
		t.Fatalf("StoreAggregated: %v", err)
	}

	info, _ = f.owner.GetRound(ctx, 1)
	if info.State != ledger.StateAggregated || info.AggregatedModel != ref("agg-1") {
		t.Errorf("round after aggregate = %+v", info)
	}

	if _, err := f.owner.StartRound(ctx, 2, ref("agg-1")); err != nil {
		t.Fatalf("StartRound(2): %v", err)
	}

	cur, _ = f.owner.CurrentRound(ctx)
	if cur != 2 {
		t.Errorf("CurrentRound = %d, want 2", cur)
	}
}

func TestUpdatesListsInOrder(t *testing.T) {
	f := newFixture(t)

	f.owner.StartRound(context.Background(), 1, ref("g"))
	f.owner.StartRound(context.Background(), 2, ref("g"))

	submit(t, f.client, 2, "x", 1)
	submit(t, f.client, 2, "y", 2)
	submit(t, f.client, 2, "z", 3)

	ups, err := f.contract.Updates(2)
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}

	if len(ups) != 3 {
		t.Fatalf("len = %d, want 3", len(ups))
	}

	for i, want := range []string{"x", "y", "z"} {
		if ups[i].ClientID != want || ups[i].Index != i {
			t.Errorf("update %d = %s/%d, want %s/%d", i, ups[i].ClientID, ups[i].Index, want, i)
		}
	}
}

// =============================================================================
// Rejections
// =============================================================================

func TestSubmitAfterCloseRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner.StartRound(ctx, 1, ref("g"))
	submit(t, f.client, 1, "a", 5)
	f.owner.CloseRound(ctx, 1)

	_, err := f.client.SubmitUpdate(ctx, ledger.Submission{Round: 1, ClientID: "late", Weights: ref("late"), Size: 5})
	if !errors.Is(err, ledger.ErrRoundClosed) {
		t.Fatalf("err = %v, want ErrRoundClosed", err)
	}

	n, _ := f.owner.UpdateCount(ctx, 1)
	if n != 1 {
		t.Errorf("UpdateCount = %d, want 1", n)
	}
}

func TestOwnerOnlyMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.client.StartRound(ctx, 1, ref("g")); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("client StartRound err = %v, want ErrUnauthorized", err)
	}

	f.owner.StartRound(ctx, 1, ref("g"))

	if _, err := f.client.CloseRound(ctx, 1); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("client CloseRound err = %v, want ErrUnauthorized", err)
	}

	f.owner.CloseRound(ctx, 1)

	if _, err := f.client.StoreAggregated(ctx, 1, ref("a")); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("client StoreAggregated err = %v, want ErrUnauthorized", err)
	}
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.owner.CloseRound(ctx, 9); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("close unknown round err = %v", err)
	}

	if _, err := f.owner.StartRound(ctx, 0, ref("g")); !errors.Is(err, ledger.ErrInvalid) {
		t.Errorf("start round 0 err = %v", err)
	}

	f.owner.StartRound(ctx, 3, ref("g"))

	if _, err := f.owner.StartRound(ctx, 3, ref("g")); !errors.Is(err, ledger.ErrRoundExists) {
		t.Errorf("restart round err = %v", err)
	}

	if _, err := f.owner.StartRound(ctx, 2, ref("g")); !errors.Is(err, ledger.ErrInvalid) {
		t.Errorf("start earlier round err = %v", err)
	}

	if _, err := f.owner.StoreAggregated(ctx, 3, ref("a")); !errors.Is(err, ledger.ErrNotClosed) {
		t.Errorf("aggregate open round err = %v", err)
	}

	f.owner.CloseRound(ctx, 3)

	if _, err := f.owner.CloseRound(ctx, 3); !errors.Is(err, ledger.ErrAlreadyClosed) {
		t.Errorf("double close err = %v", err)
	}

	f.owner.StoreAggregated(ctx, 3, ref("a"))

	if _, err := f.owner.StoreAggregated(ctx, 3, ref("b")); !errors.Is(err, ledger.ErrAlreadyAggregated) {
		t.Errorf("double aggregate err = %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner.StartRound(ctx, 1, ref("g"))

	tests := []struct {
		name string
		sub  ledger.Submission
	}{
		{"missing client", ledger.Submission{Round: 1, Weights: ref("a"), Size: 1}},
		{"zero size", ledger.Submission{Round: 1, ClientID: "a", Weights: ref("a")}},
		{"bad hash", ledger.Submission{Round: 1, ClientID: "a", Weights: artifact.ContentRef{URI: "x", SHA256: "nothex"}, Size: 1}},
		{"missing uri", ledger.Submission{Round: 1, ClientID: "a", Weights: artifact.ContentRef{SHA256: ref("a").SHA256}, Size: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.client.SubmitUpdate(ctx, tt.sub); !errors.Is(err, ledger.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}

	if _, err := f.client.SubmitUpdate(ctx, ledger.Submission{Round: 7, ClientID: "a", Weights: ref("a"), Size: 1}); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("unknown round err = %v, want ErrNotFound", err)
	}
}

// =============================================================================
// Gas and replay
// =============================================================================

func TestGasLimitEnforced(t *testing.T) {
	f := newFixture(t)
	owner := f.owner.caller

	req := ledger.Request{Method: ledger.MethodStartRound, Round: 1, Ref: ref("g"), Nonce: "n1"}

	gas, err := f.contract.Estimate(owner, req)
	if err != nil || gas == 0 {
		t.Fatalf("Estimate = %d, %v", gas, err)
	}

	req.GasLimit = gas - 1
	if _, err := f.contract.Apply(owner, req); !errors.Is(err, ledger.ErrOutOfGas) {
		t.Fatalf("Apply under limit err = %v, want ErrOutOfGas", err)
	}

	req.GasLimit = ledger.GasLimit(gas, nil)
	r, err := f.contract.Apply(owner, req)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if r.GasUsed != gas || r.GasLimit != req.GasLimit {
		t.Errorf("receipt gas = %d/%d, want %d/%d", r.GasUsed, r.GasLimit, gas, req.GasLimit)
	}
}

func TestReappliedTransactionReturnsOriginalReceipt(t *testing.T) {
	f := newFixture(t)
	owner := f.owner.caller

	f.owner.StartRound(context.Background(), 1, ref("g"))

	req := ledger.Request{
		Method:   ledger.MethodSubmitUpdate,
		Nonce:    "fixed",
		Round:    1,
		ClientID: "a",
		Ref:      ref("a"),
		Size:     1,
		GasLimit: ledger.FallbackGasLimit,
	}

	first, err := f.contract.Apply(owner, req)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	gas, err := f.contract.Estimate(owner, req)
	if err != nil || gas != first.GasUsed {
		t.Errorf("Estimate after apply = %d, %v, want %d", gas, err, first.GasUsed)
	}

	again, err := f.contract.Apply(owner, req)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if again.TxHash != first.TxHash || again.GasUsed != first.GasUsed || again.GasLimit != first.GasLimit {
		t.Errorf("second receipt = %+v, want %+v", again, first)
	}

	n, _ := f.contract.UpdateCount(1)
	if n != 1 {
		t.Errorf("UpdateCount = %d after re-apply, want 1", n)
	}
}

func TestDuplicateClientRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner.StartRound(ctx, 1, ref("g"))
	submit(t, f.client, 1, "a", 4)

	_, err := f.client.SubmitUpdate(ctx, ledger.Submission{Round: 1, ClientID: "a", Weights: ref("other"), Size: 9})
	if !errors.Is(err, ledger.ErrDuplicateClient) {
		t.Fatalf("second submission err = %v, want ErrDuplicateClient", err)
	}

	if _, err := f.contract.Estimate(f.client.caller, ledger.Request{
		Method:   ledger.MethodSubmitUpdate,
		Round:    1,
		ClientID: "a",
		Ref:      ref("third"),
		Size:     1,
	}); !errors.Is(err, ledger.ErrDuplicateClient) {
		t.Errorf("Estimate err = %v, want ErrDuplicateClient", err)
	}

	submit(t, f.client, 1, "b", 2)

	if n, _ := f.contract.UpdateCount(1); n != 2 {
		t.Errorf("UpdateCount = %d, want 2", n)
	}

	f.owner.CloseRound(ctx, 1)
	f.owner.StoreAggregated(ctx, 1, ref("agg"))
	f.owner.StartRound(ctx, 2, ref("agg"))

	submit(t, f.client, 2, "a", 4)
}

func TestSignedReceipts(t *testing.T) {
	f := newFixture(t)

	_, priv, _ := ed25519.GenerateKey(nil)
	signer, err := ledger.DeriveReceiptSigner(priv)
	if err != nil {
		t.Fatalf("DeriveReceiptSigner: %v", err)
	}

	r, err := f.owner.WithSigner(signer).StartRound(context.Background(), 1, ref("g"))
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	if !ledger.VerifyReceipt(r, signer.PublicKey()) {
		t.Errorf("receipt signature does not verify")
	}
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	owner, _, _ := ed25519.GenerateKey(nil)

	db, err := storage.New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	c, _ := New(db, Options{Owner: owner})
	c.As(owner).StartRound(context.Background(), 4, ref("g"))
	db.Close()

	db, err = storage.New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	c, _ = New(db, Options{Owner: owner})

	cur, err := c.CurrentRound()
	if err != nil || cur != 4 {
		t.Fatalf("CurrentRound after reopen = %d, %v", cur, err)
	}

	info, err := c.Round(4)
	if err != nil || !info.Collecting() || info.GlobalModel != ref("g") {
		t.Errorf("Round(4) = %+v, %v", info, err)
	}
}
