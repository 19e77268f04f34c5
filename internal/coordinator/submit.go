package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ChainFL/internal/artifact"
	"ChainFL/internal/events"
	"ChainFL/internal/ledger"
	"ChainFL/internal/registry"
)

// Rejection reasons reported in Outcome.Reason.
const (
	ReasonRoundClosed       = "Round closed"
	ReasonDuplicate         = "duplicate client"
	ReasonMissingMetadata   = "missing metadata"
	ReasonUnknownRound      = "unknown round"
	ReasonLedgerUnavailable = "ledger unavailable"
)

// Submission is a client's update announcement.
type Submission struct {
	ClientID string
	Weights  artifact.ContentRef
	Size     uint64
	Round    uint64 // Round is the round the client trained for; 0 means current
}

// Outcome is the structured result of Submit.
type Outcome struct {
	Success      bool   `json:"success"`
	Round        uint64 `json:"round"`
	TxHash       string `json:"txHash,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
	TotalUpdates int    `json:"totalUpdatesThisRound,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
}

func rejected(round uint64, reason, msg string) Outcome {
	return Outcome{Round: round, Reason: reason, Message: msg}
}

// Submit admits one client update: registry first, then the ledger.
// Safe for concurrent use.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) Outcome {
	out := c.submit(ctx, sub)

	if out.Success {
		c.deps.Metrics.Submission("accepted")
	} else {
		c.deps.Metrics.Submission(out.Reason)
		c.log.Debug("submission rejected", "round", out.Round, "client", sub.ClientID, "reason", out.Reason, "message", out.Message)
	}

	return out
}

func (c *Coordinator) submit(ctx context.Context, sub Submission) Outcome {
	if msg := validate(sub); msg != "" {
		return rejected(sub.Round, ReasonMissingMetadata, msg)
	}

	c.gate.RLock()
	defer c.gate.RUnlock()

	c.mu.RLock()
	phase, round := c.phase, c.round
	c.mu.RUnlock()

	target := sub.Round
	if target == 0 {
		target = round
	}

	switch {
	case target > round:
		return rejected(target, ReasonUnknownRound, fmt.Sprintf("round %d has not started, current round is %d", target, round))
	case target < round:
		return rejected(target, ReasonRoundClosed, fmt.Sprintf("round %d is closed, current round is %d", target, round))
	case phase != PhaseCollecting:
		return rejected(target, ReasonRoundClosed, fmt.Sprintf("round %d is not accepting updates (%s)", target, phase))
	}

	id := uuid.NewString()

	entry := registry.Entry{
		SubmissionID: id,
		Weights:      sub.Weights,
		Size:         sub.Size,
		RegisteredAt: time.Now(),
	}

	if !c.deps.Registry.TryRegister(round, sub.ClientID, entry) {
		return rejected(round, ReasonDuplicate,
			fmt.Sprintf("client %s already submitted in round %d: %v", sub.ClientID, round, registry.ErrDuplicateSubmission))
	}

	receipt, err := c.deps.Ledger.SubmitUpdate(ctx, ledger.Submission{
		Round:    round,
		ClientID: sub.ClientID,
		Weights:  sub.Weights,
		Size:     sub.Size,
		Nonce:    id,
	})
	c.deps.Metrics.LedgerWrite(string(ledger.MethodSubmitUpdate), err)

	if err != nil {
		// The ledger already holds an update from this client; keep it registered.
		if !errors.Is(err, ledger.ErrDuplicateClient) {
			c.deps.Registry.Release(round, sub.ClientID, id)
		}
		return c.ledgerRejection(round, err)
	}

	c.deps.Registry.Confirm(round, sub.ClientID, receipt.TxHash)
	total := c.deps.Registry.Count(round)

	c.log.Info("update accepted",
		"round", round,
		"client", sub.ClientID,
		"size", sub.Size,
		"tx", receipt.TxHash,
		"total", total,
	)

	c.publish(events.Event{Type: events.UpdateAccepted, Round: round, ClientID: sub.ClientID, Updates: total})

	return Outcome{
		Success:      true,
		Round:        round,
		TxHash:       receipt.TxHash,
		SubmissionID: id,
		TotalUpdates: total,
	}
}

// ledgerRejection maps a failed ledger write to an outcome.
func (c *Coordinator) ledgerRejection(round uint64, err error) Outcome {
	switch {
	case errors.Is(err, ledger.ErrRoundClosed):
		return rejected(round, ReasonRoundClosed, err.Error())
	case errors.Is(err, ledger.ErrDuplicateClient):
		return rejected(round, ReasonDuplicate, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return rejected(round, ReasonUnknownRound, err.Error())
	case errors.Is(err, ledger.ErrInvalid):
		return rejected(round, ReasonMissingMetadata, err.Error())
	default:
		c.log.Warn("ledger submit failed", "round", round, "error", err)
		return rejected(round, ReasonLedgerUnavailable, err.Error())
	}
}

// validate returns a description of the first missing field, or "".
func validate(sub Submission) string {
	switch {
	case sub.ClientID == "":
		return "clientId is required"
	case sub.Weights.URI == "":
		return "weightsPath is required"
	case sub.Weights.SHA256 == "":
		return "weightsHash is required"
	case !artifact.ValidHash(sub.Weights.SHA256):
		return "weightsHash must be a hex sha256 digest"
	case sub.Size == 0:
		return "weightsSize must be positive"
	}

	return ""
}
