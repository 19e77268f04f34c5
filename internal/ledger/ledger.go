// Package ledger defines the round contract surface the coordinator depends on
// and a QUIC client for the development ledger node.
package ledger

import (
	"context"
	"time"

	"ChainFL/internal/artifact"
)

// RoundID is a ledger round number. Rounds start at 1; 0 means unset.
type RoundID = uint64

// RoundState is the ledger-side lifecycle of a round.
type RoundState uint8

const (
	StateCollecting RoundState = iota
	StateClosed
	StateAggregated
)

// String returns the state name.
func (s RoundState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateClosed:
		return "closed"
	case StateAggregated:
		return "aggregated"
	default:
		return "unknown"
	}
}

// RoundInfo is the ledger's view of one round.
type RoundInfo struct {
	ID              RoundID             `json:"id"`
	State           RoundState          `json:"state"`
	GlobalModel     artifact.ContentRef `json:"globalModel"`               // GlobalModel is the model the round trains from
	AggregatedModel artifact.ContentRef `json:"aggregatedModel,omitzero"` // AggregatedModel is set once Aggregated
	UpdateCount     int                 `json:"updateCount"`
	OpenedAt        time.Time           `json:"openedAt"`
	ClosedAt        time.Time           `json:"closedAt,omitzero"`
}

// Collecting reports whether the round accepts updates.
func (r RoundInfo) Collecting() bool {
	return r.State == StateCollecting
}

// Update is one client contribution recorded on the ledger.
type Update struct {
	Index       int                 `json:"index"`
	Round       RoundID             `json:"round"`
	ClientID    string              `json:"clientId"`
	Sender      string              `json:"sender"` // Sender is the hex key of the submitting account
	Weights     artifact.ContentRef `json:"weights"`
	Size        uint64              `json:"size"` // Size is the declared local sample count
	SubmittedAt time.Time           `json:"submittedAt"`
	TxHash      string              `json:"txHash"`
}

// Submission is the payload of SubmitUpdate.
type Submission struct {
	Round    RoundID
	ClientID string
	Weights  artifact.ContentRef
	Size     uint64
	Nonce    string // Nonce identifies the write across retries; empty picks a fresh one
}

// TxReceipt confirms an accepted ledger write.
type TxReceipt struct {
	TxHash    string  `json:"txHash"`
	Round     RoundID `json:"round"`
	GasUsed   uint64  `json:"gasUsed"`
	GasLimit  uint64  `json:"gasLimit"`
	Signature []byte  `json:"signature,omitempty"` // Signature is the node's BLS signature
}

// Ledger is the round contract as seen by the coordinator.
// Reads are side-effect free; writes return a receipt once accepted.
type Ledger interface {
	StartRound(ctx context.Context, id RoundID, global artifact.ContentRef) (TxReceipt, error)
	CurrentRound(ctx context.Context) (RoundID, error)
	GetRound(ctx context.Context, id RoundID) (RoundInfo, error)
	SubmitUpdate(ctx context.Context, sub Submission) (TxReceipt, error)
	UpdateCount(ctx context.Context, round RoundID) (int, error)
	GetUpdate(ctx context.Context, round RoundID, index int) (Update, error)
	CloseRound(ctx context.Context, round RoundID) (TxReceipt, error)
	StoreAggregated(ctx context.Context, round RoundID, ref artifact.ContentRef) (TxReceipt, error)
}
