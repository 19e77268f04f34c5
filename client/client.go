// Package client is the participant SDK for a ChainFL coordinator's front door.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds each HTTP request.
	defaultTimeout = 30 * time.Second
)

// Client talks to a coordinator over HTTP.
type Client struct {
	baseURL    string       // baseURL is the coordinator root, e.g. "http://127.0.0.1:8080"
	http       *http.Client // http is the underlying HTTP client
	adminToken string       // adminToken is sent as a bearer token on operator calls
}

// RoundInfo is the ledger's current round as reported by the coordinator.
type RoundInfo struct {
	Round           uint64 `json:"round"`
	GlobalModelHash string `json:"globalModelHash"`
	GlobalModelURI  string `json:"globalModelUri"`
	State           string `json:"state,omitempty"`
}

// Result is the coordinator's answer to a submission.
type Result struct {
	Success      bool   `json:"success"`
	Round        uint64 `json:"round"`
	TxHash       string `json:"txHash,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
	TotalUpdates int    `json:"totalUpdatesThisRound,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Status is the coordinator's loop state.
type Status struct {
	Round      uint64 `json:"round"`
	Phase      string `json:"phase"`
	Registered int    `json:"registered"`
	LastError  string `json:"lastError,omitempty"`
}

// New creates a client. addr may omit the scheme.
func New(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// CurrentRound returns the round clients should train for.
func (c *Client) CurrentRound(ctx context.Context) (RoundInfo, error) {
	var info RoundInfo

	if err := c.get(ctx, "/current-round", &info); err != nil {
		return RoundInfo{}, fmt.Errorf("get current round:\n%w", err)
	}

	return info, nil
}

// SubmitUpdate announces a prepared update for round (0 means current).
// A rejected submission is not an error: inspect Result.Success and Result.Reason.
func (c *Client) SubmitUpdate(ctx context.Context, clientID string, u Update, round uint64) (Result, error) {
	body := map[string]any{
		"clientId":    clientID,
		"weightsPath": u.Path,
		"weightsHash": u.Hash,
		"weightsSize": u.Size,
	}
	if round > 0 {
		body["round"] = round
	}

	var res Result

	if err := c.post(ctx, "/submit-update", body, &res, http.StatusBadRequest, http.StatusServiceUnavailable); err != nil {
		return Result{}, fmt.Errorf("submit update:\n%w", err)
	}

	return res, nil
}

// Status returns the coordinator's loop state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status

	if err := c.get(ctx, "/status", &s); err != nil {
		return Status{}, fmt.Errorf("get status:\n%w", err)
	}

	return s, nil
}

// WithAdminToken returns a copy of c that authenticates operator calls with token.
func (c *Client) WithAdminToken(token string) *Client {
	cp := *c
	cp.adminToken = token
	return &cp
}

// CloseRound asks the coordinator to end the collection window now.
func (c *Client) CloseRound(ctx context.Context) (uint64, error) {
	var res struct {
		Round uint64 `json:"round"`
	}

	if err := c.post(ctx, "/close-round", nil, &res); err != nil {
		return 0, fmt.Errorf("close round:\n%w", err)
	}

	return res.Round, nil
}

// Report returns the raw aggregation report of round.
func (c *Client) Report(ctx context.Context, round uint64) (map[string]any, error) {
	var rep map[string]any

	if err := c.get(ctx, "/rounds/"+strconv.FormatUint(round, 10), &rep); err != nil {
		return nil, fmt.Errorf("get report:\n%w", err)
	}

	return rep, nil
}
