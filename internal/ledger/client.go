package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ChainFL/internal/artifact"
	"ChainFL/internal/logger"
	"ChainFL/internal/network"
)

const (
	// defaultRequestTimeout bounds a single RPC.
	defaultRequestTimeout = 10 * time.Second
)

// ClientConfig configures a ledger client.
type ClientConfig struct {
	Addr           string             // Addr is the ledger node's QUIC address
	PrivateKey     ed25519.PrivateKey // PrivateKey is the account key presented to the node
	NodeKey        ed25519.PublicKey  // NodeKey pins the node's identity; nil trusts the first key seen
	ReceiptKey     []byte             // ReceiptKey pins the BLS receipt key; nil learns it from the node
	RequestTimeout time.Duration      // RequestTimeout bounds each RPC
	Logger         *slog.Logger
}

// Client talks to a ledger node over QUIC.
type Client struct {
	cfg  ClientConfig
	node *network.Node // node is the dial-only local endpoint
	log  *slog.Logger

	mu         sync.Mutex
	peer       *network.Peer // peer is the current connection, redialed when closed
	nodeKey    ed25519.PublicKey
	receiptKey []byte
}

var _ Ledger = (*Client)(nil)

// Dial connects to the ledger node and fetches its identity.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("ledger address is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Component("ledger-client")
	}

	node, err := network.NewNode(network.Config{PrivateKey: cfg.PrivateKey})
	if err != nil {
		return nil, fmt.Errorf("create network node:\n%w", err)
	}

	c := &Client{
		cfg:        cfg,
		node:       node,
		log:        cfg.Logger,
		nodeKey:    cfg.NodeKey,
		receiptKey: cfg.ReceiptKey,
	}

	info, err := c.Info(ctx)
	if err != nil {
		node.Close()
		return nil, err
	}

	key, err := hex.DecodeString(info.ReceiptKey)
	if err != nil || len(key) != BLSPublicKeySize {
		node.Close()
		return nil, fmt.Errorf("node advertised invalid receipt key %q", info.ReceiptKey)
	}

	if c.receiptKey == nil {
		c.receiptKey = key
	} else if !bytes.Equal(c.receiptKey, key) {
		node.Close()
		return nil, fmt.Errorf("node receipt key %s does not match configured key", info.ReceiptKey)
	}

	c.log.Info("connected to ledger", "addr", cfg.Addr, "owner", info.Owner, "round", info.CurrentRound)

	return c, nil
}

// Close drops the connection.
func (c *Client) Close() error {
	return c.node.Close()
}

// Info returns the node's identity and current round.
func (c *Client) Info(ctx context.Context) (NodeInfo, error) {
	resp, err := c.call(ctx, Request{Method: MethodInfo})
	if err != nil {
		return NodeInfo{}, err
	}

	if resp.Info == nil {
		return NodeInfo{}, &Error{Op: string(MethodInfo), Err: errors.New("empty info")}
	}

	return *resp.Info, nil
}

// StartRound opens round id with the given global model.
func (c *Client) StartRound(ctx context.Context, id RoundID, global artifact.ContentRef) (TxReceipt, error) {
	return c.write(ctx, Request{Method: MethodStartRound, Round: id, Ref: global})
}

// CurrentRound returns the latest round id, 0 if none.
func (c *Client) CurrentRound(ctx context.Context) (RoundID, error) {
	resp, err := c.call(ctx, Request{Method: MethodCurrentRound})
	if err != nil {
		return 0, err
	}

	return resp.Current, nil
}

// GetRound returns the ledger's view of round id.
func (c *Client) GetRound(ctx context.Context, id RoundID) (RoundInfo, error) {
	resp, err := c.call(ctx, Request{Method: MethodGetRound, Round: id})
	if err != nil {
		return RoundInfo{}, err
	}

	if resp.Round == nil {
		return RoundInfo{}, &Error{Op: string(MethodGetRound), Err: errors.New("empty round")}
	}

	return *resp.Round, nil
}

// SubmitUpdate records a client update in sub.Round.
func (c *Client) SubmitUpdate(ctx context.Context, sub Submission) (TxReceipt, error) {
	return c.write(ctx, Request{
		Method:   MethodSubmitUpdate,
		Round:    sub.Round,
		ClientID: sub.ClientID,
		Ref:      sub.Weights,
		Size:     sub.Size,
		Nonce:    sub.Nonce,
	})
}

// UpdateCount returns the number of updates recorded for round.
func (c *Client) UpdateCount(ctx context.Context, round RoundID) (int, error) {
	resp, err := c.call(ctx, Request{Method: MethodUpdateCount, Round: round})
	if err != nil {
		return 0, err
	}

	return resp.Count, nil
}

// GetUpdate returns update index of round.
func (c *Client) GetUpdate(ctx context.Context, round RoundID, index int) (Update, error) {
	resp, err := c.call(ctx, Request{Method: MethodGetUpdate, Round: round, Index: index})
	if err != nil {
		return Update{}, err
	}

	if resp.Update == nil {
		return Update{}, &Error{Op: string(MethodGetUpdate), Err: errors.New("empty update")}
	}

	return *resp.Update, nil
}

// CloseRound moves round from Collecting to Closed.
func (c *Client) CloseRound(ctx context.Context, round RoundID) (TxReceipt, error) {
	return c.write(ctx, Request{Method: MethodCloseRound, Round: round})
}

// StoreAggregated records the aggregated model of a closed round.
func (c *Client) StoreAggregated(ctx context.Context, round RoundID, ref artifact.ContentRef) (TxReceipt, error) {
	return c.write(ctx, Request{Method: MethodStoreAggregated, Round: round, Ref: ref})
}

// write prices req, attaches a gas limit with margin and submits it.
func (c *Client) write(ctx context.Context, req Request) (TxReceipt, error) {
	estimate, estErr := c.estimate(ctx, req)
	if estErr != nil {
		// A contract rejection during estimation is the answer; don't spend a write on it.
		if !IsTransient(estErr) {
			return TxReceipt{}, estErr
		}
		c.log.Warn("gas estimation failed, using fallback", "method", req.Method, "error", estErr)
	}

	req.GasLimit = GasLimit(estimate, estErr)
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		return TxReceipt{}, err
	}

	if resp.Receipt == nil {
		return TxReceipt{}, &Error{Op: string(req.Method), Err: errors.New("missing receipt")}
	}

	receipt := *resp.Receipt

	c.mu.Lock()
	key := c.receiptKey
	c.mu.Unlock()

	if key != nil && !VerifyReceipt(receipt, key) {
		return TxReceipt{}, fmt.Errorf("%s %s: %w", req.Method, receipt.TxHash, ErrBadReceipt)
	}

	c.log.Debug("ledger write accepted",
		"method", req.Method,
		"round", req.Round,
		"tx", receipt.TxHash,
		"gasUsed", receipt.GasUsed,
		"gasLimit", receipt.GasLimit,
	)

	return receipt, nil
}

// estimate asks the node how much gas req needs.
func (c *Client) estimate(ctx context.Context, req Request) (uint64, error) {
	call := req
	resp, err := c.call(ctx, Request{Method: MethodEstimate, Call: &call})
	if err != nil {
		return 0, err
	}

	return resp.Gas, nil
}

// call performs one RPC, mapping transport failures to *Error.
func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	op := string(req.Method)

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s:\n%w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	peer, err := c.connection(ctx)
	if err != nil {
		return Response{}, &Error{Op: op, Err: err}
	}

	raw, err := peer.Request(ctx, body)
	if err != nil {
		peer.Close()
		return Response{}, &Error{Op: op, Err: err}
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.Code != "" {
		return resp, errorOf(op, resp.Code, resp.Message)
	}

	return resp, nil
}

// connection returns a live peer, redialing if the previous one closed.
func (c *Client) connection(ctx context.Context) (*network.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer != nil && !c.peer.Closed() {
		return c.peer, nil
	}

	peer, err := c.node.Connect(ctx, c.cfg.Addr)
	if err != nil {
		return nil, err
	}

	if c.nodeKey == nil {
		c.nodeKey = peer.PublicKey()
	} else if !bytes.Equal(c.nodeKey, peer.PublicKey()) {
		peer.Close()
		return nil, fmt.Errorf("ledger node key %x does not match pinned key", peer.PublicKey()[:8])
	}

	c.peer = peer

	return peer, nil
}
