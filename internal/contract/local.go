package contract

import (
	"context"
	"crypto/ed25519"

	"github.com/google/uuid"

	"ChainFL/internal/artifact"
	"ChainFL/internal/ledger"
)

// Local is an in-process ledger bound to one caller account.
// It prices and submits writes the same way the QUIC client does.
type Local struct {
	c      *Contract
	caller ed25519.PublicKey
	signer *ledger.ReceiptSigner // signer is optional; nil leaves receipts unsigned
}

var _ ledger.Ledger = (*Local)(nil)

// As returns a ledger view acting as caller.
func (c *Contract) As(caller ed25519.PublicKey) *Local {
	return &Local{c: c, caller: caller}
}

// WithSigner returns a copy of l that signs receipts with s.
func (l *Local) WithSigner(s *ledger.ReceiptSigner) *Local {
	cp := *l
	cp.signer = s
	return &cp
}

// StartRound opens round id.
func (l *Local) StartRound(ctx context.Context, id ledger.RoundID, global artifact.ContentRef) (ledger.TxReceipt, error) {
	return l.write(ctx, ledger.Request{Method: ledger.MethodStartRound, Round: id, Ref: global})
}

// CurrentRound returns the latest round id.
func (l *Local) CurrentRound(ctx context.Context) (ledger.RoundID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.c.CurrentRound()
}

// GetRound returns round id.
func (l *Local) GetRound(ctx context.Context, id ledger.RoundID) (ledger.RoundInfo, error) {
	if err := ctx.Err(); err != nil {
		return ledger.RoundInfo{}, err
	}
	return l.c.Round(id)
}

// SubmitUpdate records an update.
func (l *Local) SubmitUpdate(ctx context.Context, sub ledger.Submission) (ledger.TxReceipt, error) {
	return l.write(ctx, ledger.Request{
		Method:   ledger.MethodSubmitUpdate,
		Round:    sub.Round,
		ClientID: sub.ClientID,
		Ref:      sub.Weights,
		Size:     sub.Size,
		Nonce:    sub.Nonce,
	})
}

// UpdateCount returns the number of updates in round.
func (l *Local) UpdateCount(ctx context.Context, round ledger.RoundID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.c.UpdateCount(round)
}

// GetUpdate returns update index of round.
func (l *Local) GetUpdate(ctx context.Context, round ledger.RoundID, index int) (ledger.Update, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Update{}, err
	}
	return l.c.Update(round, index)
}

// CloseRound closes round.
func (l *Local) CloseRound(ctx context.Context, round ledger.RoundID) (ledger.TxReceipt, error) {
	return l.write(ctx, ledger.Request{Method: ledger.MethodCloseRound, Round: round})
}

// StoreAggregated records the aggregated model of round.
func (l *Local) StoreAggregated(ctx context.Context, round ledger.RoundID, ref artifact.ContentRef) (ledger.TxReceipt, error) {
	return l.write(ctx, ledger.Request{Method: ledger.MethodStoreAggregated, Round: round, Ref: ref})
}

func (l *Local) write(ctx context.Context, req ledger.Request) (ledger.TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TxReceipt{}, err
	}

	estimate, err := l.c.Estimate(l.caller, req)
	if err != nil {
		return ledger.TxReceipt{}, err
	}

	req.GasLimit = ledger.GasLimit(estimate, nil)
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}

	receipt, err := l.c.Apply(l.caller, req)
	if err != nil {
		return ledger.TxReceipt{}, err
	}

	if l.signer != nil {
		l.signer.Sign(&receipt)
	}

	return receipt, nil
}
