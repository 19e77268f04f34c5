// Package contract implements the federated learning round contract on a
// Pebble-backed state store. It is the authoritative state of the development
// ledger node: rounds, recorded updates and applied transactions.
package contract

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"ChainFL/internal/artifact"
	"ChainFL/internal/ledger"
	"ChainFL/internal/logger"
	"ChainFL/internal/storage"
)

// Contract holds round state and validates every transition.
type Contract struct {
	db    *storage.Storage  // db is the state store
	owner ed25519.PublicKey // owner may start, close and finalize rounds
	now   func() time.Time
	log   *slog.Logger

	mu sync.Mutex // mu serializes writes and estimates
}

// Options configures a Contract.
type Options struct {
	Owner  ed25519.PublicKey // Owner is the coordinator account
	Now    func() time.Time  // Now overrides the clock in tests
	Logger *slog.Logger
}

// New creates a contract over db.
func New(db *storage.Storage, opts Options) (*Contract, error) {
	if len(opts.Owner) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("owner key must be %d bytes, got %d", ed25519.PublicKeySize, len(opts.Owner))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Component("contract")
	}

	return &Contract{db: db, owner: opts.Owner, now: opts.Now, log: opts.Logger}, nil
}

// Owner returns the owner account key.
func (c *Contract) Owner() ed25519.PublicKey {
	return c.owner
}

// =============================================================================
// Reads
// =============================================================================

// CurrentRound returns the most recently started round, 0 if none.
func (c *Contract) CurrentRound() (uint64, error) {
	v, err := c.db.Get(keyCurrent)
	if err != nil {
		return 0, fmt.Errorf("read current round:\n%w", err)
	}

	return decodeUint64(v), nil
}

// Round returns the state of round id.
func (c *Contract) Round(id uint64) (ledger.RoundInfo, error) {
	info, _, err := c.loadRound(id)
	return info, err
}

// UpdateCount returns the number of updates recorded in round.
func (c *Contract) UpdateCount(round uint64) (int, error) {
	info, _, err := c.loadRound(round)
	if err != nil {
		return 0, err
	}

	return info.UpdateCount, nil
}

// Update returns update index of round.
func (c *Contract) Update(round uint64, index int) (ledger.Update, error) {
	if index < 0 {
		return ledger.Update{}, fmt.Errorf("update index %d: %w", index, ledger.ErrInvalid)
	}

	data, err := c.db.Get(updateKey(round, uint64(index)))
	if err != nil {
		return ledger.Update{}, fmt.Errorf("read update:\n%w", err)
	}

	if data == nil {
		return ledger.Update{}, fmt.Errorf("round %d update %d: %w", round, index, ledger.ErrNotFound)
	}

	return decodeUpdate(data), nil
}

// Updates returns all updates of round in submission order.
func (c *Contract) Updates(round uint64) ([]ledger.Update, error) {
	var out []ledger.Update

	prefix := updateKey(round, 0)[:len(prefixUpdate)+8]

	err := c.db.ScanPrefix(prefix, func(_, value []byte) error {
		out = append(out, decodeUpdate(value))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan updates:\n%w", err)
	}

	return out, nil
}

// loadRound reads a round record; exists is false with ErrNotFound.
func (c *Contract) loadRound(id uint64) (ledger.RoundInfo, bool, error) {
	data, err := c.db.Get(roundKey(id))
	if err != nil {
		return ledger.RoundInfo{}, false, fmt.Errorf("read round:\n%w", err)
	}

	if data == nil {
		return ledger.RoundInfo{}, false, fmt.Errorf("round %d: %w", id, ledger.ErrNotFound)
	}

	return decodeRound(data), true, nil
}

// =============================================================================
// Writes
// =============================================================================

// Estimate validates req against current state and returns the gas it needs.
func (c *Contract) Estimate(caller ed25519.PublicKey, req ledger.Request) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := TxHash(caller, req)

	prior, applied, err := c.appliedTx(hash)
	if err != nil {
		return 0, err
	}
	if applied {
		return prior.GasUsed, nil
	}

	_, gas, err := c.plan(caller, req, hash)

	return gas, err
}

// Apply executes a write and returns its receipt (unsigned).
// Re-applying a transaction returns the receipt of its first application.
func (c *Contract) Apply(caller ed25519.PublicKey, req ledger.Request) (ledger.TxReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := TxHash(caller, req)

	prior, applied, err := c.appliedTx(hash)
	if err != nil {
		return ledger.TxReceipt{}, err
	}
	if applied {
		c.log.Debug("transaction already applied", "method", req.Method, "round", req.Round, "tx", prior.TxHash)
		return prior, nil
	}

	muts, gas, err := c.plan(caller, req, hash)
	if err != nil {
		return ledger.TxReceipt{}, err
	}

	if req.GasLimit < gas {
		return ledger.TxReceipt{}, fmt.Errorf("%s needs %d gas, limit %d: %w", req.Method, gas, req.GasLimit, ledger.ErrOutOfGas)
	}

	receipt := ledger.TxReceipt{
		TxHash:   "0x" + hex.EncodeToString(hash[:]),
		Round:    req.Round,
		GasUsed:  gas,
		GasLimit: req.GasLimit,
	}

	stored, err := json.Marshal(receipt)
	if err != nil {
		return ledger.TxReceipt{}, fmt.Errorf("encode receipt:\n%w", err)
	}

	batch := c.db.NewBatch()
	defer batch.Close()

	for _, m := range muts {
		if err := batch.Set(m.key, m.value); err != nil {
			return ledger.TxReceipt{}, fmt.Errorf("stage write:\n%w", err)
		}
	}

	if err := batch.Set(txKey(hash), stored); err != nil {
		return ledger.TxReceipt{}, fmt.Errorf("stage tx:\n%w", err)
	}

	if err := c.db.Commit(batch); err != nil {
		return ledger.TxReceipt{}, fmt.Errorf("commit:\n%w", err)
	}

	c.log.Info("transaction applied",
		"method", req.Method,
		"round", req.Round,
		"tx", receipt.TxHash[:18],
		"gas", gas,
	)

	return receipt, nil
}

// appliedTx returns the stored receipt of an already applied transaction.
func (c *Contract) appliedTx(hash [32]byte) (ledger.TxReceipt, bool, error) {
	data, err := c.db.Get(txKey(hash))
	if err != nil {
		return ledger.TxReceipt{}, false, fmt.Errorf("check tx:\n%w", err)
	}
	if data == nil {
		return ledger.TxReceipt{}, false, nil
	}

	var r ledger.TxReceipt
	if err := json.Unmarshal(data, &r); err != nil {
		return ledger.TxReceipt{}, false, fmt.Errorf("decode receipt of tx %x:\n%w", hash[:8], err)
	}

	return r, true, nil
}

// plan validates req and computes its state mutations and gas.
func (c *Contract) plan(caller ed25519.PublicKey, req ledger.Request, hash [32]byte) ([]mutation, uint64, error) {
	var (
		muts    []mutation
		payload int
		err     error
	)

	switch req.Method {
	case ledger.MethodStartRound:
		muts, err = c.planStartRound(caller, req)
		payload = len(req.Ref.URI) + len(req.Ref.SHA256)
	case ledger.MethodSubmitUpdate:
		muts, err = c.planSubmitUpdate(caller, req, hash)
		payload = len(req.ClientID) + len(req.Ref.URI) + len(req.Ref.SHA256)
	case ledger.MethodCloseRound:
		muts, err = c.planCloseRound(caller, req)
	case ledger.MethodStoreAggregated:
		muts, err = c.planStoreAggregated(caller, req)
		payload = len(req.Ref.URI) + len(req.Ref.SHA256)
	default:
		err = fmt.Errorf("method %q is not a write: %w", req.Method, ledger.ErrInvalid)
	}

	if err != nil {
		return nil, 0, err
	}

	return muts, gasFor(payload, muts), nil
}

// planStartRound opens a new round above the current one.
func (c *Contract) planStartRound(caller ed25519.PublicKey, req ledger.Request) ([]mutation, error) {
	if err := c.requireOwner(caller); err != nil {
		return nil, err
	}

	if req.Round == 0 {
		return nil, fmt.Errorf("round id must be positive: %w", ledger.ErrInvalid)
	}

	if err := validRef(req.Ref); err != nil {
		return nil, err
	}

	if _, exists, err := c.loadRound(req.Round); exists {
		return nil, fmt.Errorf("round %d: %w", req.Round, ledger.ErrRoundExists)
	} else if err != nil && !isNotFound(err) {
		return nil, err
	}

	current, err := c.CurrentRound()
	if err != nil {
		return nil, err
	}

	if req.Round <= current {
		return nil, fmt.Errorf("round %d is not after current round %d: %w", req.Round, current, ledger.ErrInvalid)
	}

	info := ledger.RoundInfo{
		ID:          req.Round,
		State:       ledger.StateCollecting,
		GlobalModel: req.Ref,
		OpenedAt:    c.now(),
	}

	return []mutation{
		{key: roundKey(req.Round), value: encodeRound(info), create: true},
		{key: keyCurrent, value: encodeUint64(req.Round), create: current == 0},
	}, nil
}

// planSubmitUpdate appends an update to a collecting round.
func (c *Contract) planSubmitUpdate(caller ed25519.PublicKey, req ledger.Request, hash [32]byte) ([]mutation, error) {
	info, _, err := c.loadRound(req.Round)
	if err != nil {
		return nil, err
	}

	if !info.Collecting() {
		return nil, fmt.Errorf("round %d is %s: %w", req.Round, info.State, ledger.ErrRoundClosed)
	}

	if req.ClientID == "" {
		return nil, fmt.Errorf("client id is required: %w", ledger.ErrInvalid)
	}

	if req.Size == 0 {
		return nil, fmt.Errorf("declared size must be positive: %w", ledger.ErrInvalid)
	}

	if err := validRef(req.Ref); err != nil {
		return nil, err
	}

	held, err := c.db.Has(clientKey(req.Round, req.ClientID))
	if err != nil {
		return nil, fmt.Errorf("check client:\n%w", err)
	}
	if held {
		return nil, fmt.Errorf("client %s in round %d: %w", req.ClientID, req.Round, ledger.ErrDuplicateClient)
	}

	update := ledger.Update{
		Index:       info.UpdateCount,
		Round:       req.Round,
		ClientID:    req.ClientID,
		Weights:     req.Ref,
		Size:        req.Size,
		SubmittedAt: c.now(),
	}

	info.UpdateCount++

	return []mutation{
		{key: updateKey(req.Round, uint64(update.Index)), value: encodeUpdate(update, caller, hash), create: true},
		{key: clientKey(req.Round, req.ClientID), value: encodeUint64(uint64(update.Index)), create: true},
		{key: roundKey(req.Round), value: encodeRound(info)},
	}, nil
}

// planCloseRound moves a collecting round to Closed.
func (c *Contract) planCloseRound(caller ed25519.PublicKey, req ledger.Request) ([]mutation, error) {
	if err := c.requireOwner(caller); err != nil {
		return nil, err
	}

	info, _, err := c.loadRound(req.Round)
	if err != nil {
		return nil, err
	}

	if !info.Collecting() {
		return nil, fmt.Errorf("round %d is %s: %w", req.Round, info.State, ledger.ErrAlreadyClosed)
	}

	info.State = ledger.StateClosed
	info.ClosedAt = c.now()

	return []mutation{{key: roundKey(req.Round), value: encodeRound(info)}}, nil
}

// planStoreAggregated records the aggregated model of a closed round.
func (c *Contract) planStoreAggregated(caller ed25519.PublicKey, req ledger.Request) ([]mutation, error) {
	if err := c.requireOwner(caller); err != nil {
		return nil, err
	}

	if err := validRef(req.Ref); err != nil {
		return nil, err
	}

	info, _, err := c.loadRound(req.Round)
	if err != nil {
		return nil, err
	}

	switch info.State {
	case ledger.StateCollecting:
		return nil, fmt.Errorf("round %d: %w", req.Round, ledger.ErrNotClosed)
	case ledger.StateAggregated:
		return nil, fmt.Errorf("round %d already holds %s: %w", req.Round, info.AggregatedModel.SHA256, ledger.ErrAlreadyAggregated)
	}

	info.State = ledger.StateAggregated
	info.AggregatedModel = req.Ref

	return []mutation{{key: roundKey(req.Round), value: encodeRound(info)}}, nil
}

// requireOwner rejects callers other than the owner.
func (c *Contract) requireOwner(caller ed25519.PublicKey) error {
	if !bytes.Equal(caller, c.owner) {
		return fmt.Errorf("caller %x: %w", caller[:min(8, len(caller))], ledger.ErrUnauthorized)
	}

	return nil
}

// validRef checks that a content ref carries a location and a SHA-256 digest.
func validRef(ref artifact.ContentRef) error {
	if ref.URI == "" {
		return fmt.Errorf("artifact uri is required: %w", ledger.ErrInvalid)
	}

	if !artifact.ValidHash(ref.SHA256) {
		return fmt.Errorf("artifact hash %q is not a sha256 digest: %w", ref.SHA256, ledger.ErrInvalid)
	}

	return nil
}

// TxHash identifies a write: blake3 over the caller and the canonical request.
func TxHash(caller ed25519.PublicKey, req ledger.Request) [32]byte {
	req.GasLimit = 0
	req.Call = nil

	body, _ := json.Marshal(req)

	h := blake3.New()
	h.Write(caller)
	h.Write(body)

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// hexString hex-encodes b.
func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
