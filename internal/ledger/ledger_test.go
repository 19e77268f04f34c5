package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
	"time"

	"ChainFL/internal/retry"
)

// =============================================================================
// Gas
// =============================================================================

func TestGasLimitAddsMargin(t *testing.T) {
	tests := []struct {
		estimate uint64
		want     uint64
	}{
		{100_000, 125_000},
		{4, 5},
		{1, 2},
		{21_000, 26_250},
	}

	for _, tt := range tests {
		got := GasLimit(tt.estimate, nil)
		if got != tt.want {
			t.Errorf("GasLimit(%d) = %d, want %d", tt.estimate, got, tt.want)
		}

		if got*100 < tt.estimate*125 {
			t.Errorf("GasLimit(%d) = %d is below a 25%% margin", tt.estimate, got)
		}
	}
}

func TestGasLimitFallback(t *testing.T) {
	if got := GasLimit(0, errors.New("estimation failed")); got != FallbackGasLimit {
		t.Errorf("GasLimit on error = %d, want %d", got, FallbackGasLimit)
	}

	if got := GasLimit(0, nil); got != FallbackGasLimit {
		t.Errorf("GasLimit(0) = %d, want %d", got, FallbackGasLimit)
	}
}

// =============================================================================
// Error codes
// =============================================================================

func TestErrorCodesRoundTrip(t *testing.T) {
	for sentinel := range codes {
		wrapped := fmt.Errorf("round 3: %w", sentinel)
		code := CodeOf(wrapped)

		back := errorOf("op", code, wrapped.Error())
		if !errors.Is(back, sentinel) {
			t.Errorf("code %q did not map back to %v", code, sentinel)
		}

		if IsTransient(back) {
			t.Errorf("contract rejection %v marked transient", sentinel)
		}
	}
}

func TestInternalCodeIsTransient(t *testing.T) {
	if code := CodeOf(errors.New("disk full")); code != codeInternal {
		t.Fatalf("CodeOf = %q, want %q", code, codeInternal)
	}

	if !IsTransient(errorOf("op", codeInternal, "disk full")) {
		t.Errorf("internal error not transient")
	}
}

// =============================================================================
// Receipts
// =============================================================================

func TestReceiptSignVerify(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)

	signer, err := DeriveReceiptSigner(priv)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	r := TxReceipt{TxHash: "0xabc", Round: 4, GasUsed: 50_000, GasLimit: 62_500}
	signer.Sign(&r)

	if !VerifyReceipt(r, signer.PublicKey()) {
		t.Fatalf("valid receipt rejected")
	}

	tampered := r
	tampered.Round = 5
	if VerifyReceipt(tampered, signer.PublicKey()) {
		t.Errorf("tampered receipt accepted")
	}

	other, _ := DeriveReceiptSigner(mustKey(t))
	if VerifyReceipt(r, other.PublicKey()) {
		t.Errorf("receipt accepted under the wrong key")
	}
}

func TestDeriveReceiptSignerIsDeterministic(t *testing.T) {
	priv := mustKey(t)

	a, _ := DeriveReceiptSigner(priv)
	b, _ := DeriveReceiptSigner(priv)

	if string(a.PublicKey()) != string(b.PublicKey()) {
		t.Errorf("same ed25519 key derived different BLS keys")
	}
}

// mustKey returns a fresh ed25519 key.
func mustKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

// =============================================================================
// Retrying
// =============================================================================

// flakyLedger fails CurrentRound transiently a fixed number of times
// and always rejects CloseRound.
type flakyLedger struct {
	Ledger
	failures int
	calls    int
}

func (f *flakyLedger) CurrentRound(ctx context.Context) (RoundID, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, &Error{Op: "currentRound", Err: errors.New("connection reset")}
	}
	return 9, nil
}

func (f *flakyLedger) CloseRound(ctx context.Context, round RoundID) (TxReceipt, error) {
	f.calls++
	return TxReceipt{}, ErrAlreadyClosed
}

var fastRetry = retry.Policy{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}

func TestRetryingRetriesTransient(t *testing.T) {
	f := &flakyLedger{failures: 2}
	r := WithRetry(f, fastRetry, nil)

	got, err := r.CurrentRound(context.Background())
	if err != nil || got != 9 {
		t.Fatalf("CurrentRound = %d, %v; want 9, nil", got, err)
	}

	if f.calls != 3 {
		t.Errorf("calls = %d, want 3", f.calls)
	}
}

func TestRetryingPassesRejections(t *testing.T) {
	f := &flakyLedger{}
	r := WithRetry(f, fastRetry, nil)

	_, err := r.CloseRound(context.Background(), 1)
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("err = %v, want ErrAlreadyClosed", err)
	}

	if f.calls != 1 {
		t.Errorf("calls = %d, want 1", f.calls)
	}
}
