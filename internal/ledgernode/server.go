// Package ledgernode serves the round contract over QUIC for development and test networks.
package ledgernode

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ChainFL/internal/contract"
	"ChainFL/internal/ledger"
	"ChainFL/internal/logger"
	"ChainFL/internal/network"
)

// Config holds the ledger node configuration.
type Config struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the node identity, also the receipt key seed
	ListenAddr string             // ListenAddr is the QUIC listen address
	ReplayTTL  time.Duration      // ReplayTTL bounds how long write responses are cached
	Logger     *slog.Logger
}

// Server answers ledger RPCs against a contract.
type Server struct {
	contract *contract.Contract
	signer   *ledger.ReceiptSigner // signer signs every write receipt
	node     *network.Node
	replay   *ReplayCache // replay answers retransmitted writes from cache
	log      *slog.Logger
}

// New creates a ledger node serving c.
func New(cfg Config, c *contract.Contract) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Component("ledger-node")
	}

	signer, err := ledger.DeriveReceiptSigner(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("derive receipt signer:\n%w", err)
	}

	node, err := network.NewNode(network.Config{
		PrivateKey: cfg.PrivateKey,
		ListenAddr: cfg.ListenAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("create network node:\n%w", err)
	}

	s := &Server{
		contract: c,
		signer:   signer,
		node:     node,
		replay:   NewReplayCache(cfg.ReplayTTL),
		log:      cfg.Logger,
	}

	node.OnRequest(s.handle)
	node.OnConnect(func(p *network.Peer) {
		s.log.Debug("peer connected", "peer", p.Address(), "key", network.KeyHex(p.PublicKey())[:16])
	})

	return s, nil
}

// Start begins listening.
func (s *Server) Start() error {
	if err := s.node.Start(); err != nil {
		return fmt.Errorf("start listener:\n%w", err)
	}

	s.log.Info("ledger node listening",
		"addr", s.node.Addr(),
		"owner", network.KeyHex(s.contract.Owner()),
		"receiptKey", hex.EncodeToString(s.signer.PublicKey()),
	)

	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.node.Addr()
}

// PublicKey returns the node identity key clients pin.
func (s *Server) PublicKey() ed25519.PublicKey {
	return s.node.PublicKey()
}

// ReceiptKey returns the BLS key receipts are signed with.
func (s *Server) ReceiptKey() []byte {
	return s.signer.PublicKey()
}

// Close stops the node.
func (s *Server) Close() error {
	s.replay.Close()
	return s.node.Close()
}

// handle decodes one request and always answers with a Response.
func (s *Server) handle(p *network.Peer, data []byte) ([]byte, error) {
	caller := p.PublicKey()

	var req ledger.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return json.Marshal(failure(fmt.Errorf("decode request: %v: %w", err, ledger.ErrInvalid)))
	}

	write := req.Method.IsWrite()
	if write {
		if cached, ok := s.replay.Lookup(caller, data); ok {
			s.log.Debug("retransmitted write answered from cache", "method", req.Method, "round", req.Round)
			return cached, nil
		}
	}

	out, err := json.Marshal(s.dispatch(caller, req))
	if err != nil {
		return nil, err
	}

	if write {
		s.replay.Store(caller, data, out)
	}

	return out, nil
}

// dispatch routes a request to the contract. The caller is the peer's TLS identity.
func (s *Server) dispatch(caller ed25519.PublicKey, req ledger.Request) ledger.Response {
	switch req.Method {
	case ledger.MethodInfo:
		cur, err := s.contract.CurrentRound()
		if err != nil {
			return failure(err)
		}
		return ledger.Response{Info: &ledger.NodeInfo{
			Owner:        network.KeyHex(s.contract.Owner()),
			ReceiptKey:   hex.EncodeToString(s.signer.PublicKey()),
			CurrentRound: cur,
		}}

	case ledger.MethodEstimate:
		if req.Call == nil {
			return failure(fmt.Errorf("estimate without call: %w", ledger.ErrInvalid))
		}
		gas, err := s.contract.Estimate(caller, *req.Call)
		if err != nil {
			return failure(err)
		}
		return ledger.Response{Gas: gas}

	case ledger.MethodCurrentRound:
		cur, err := s.contract.CurrentRound()
		if err != nil {
			return failure(err)
		}
		return ledger.Response{Current: cur}

	case ledger.MethodGetRound:
		info, err := s.contract.Round(req.Round)
		if err != nil {
			return failure(err)
		}
		return ledger.Response{Round: &info}

	case ledger.MethodUpdateCount:
		n, err := s.contract.UpdateCount(req.Round)
		if err != nil {
			return failure(err)
		}
		return ledger.Response{Count: n}

	case ledger.MethodGetUpdate:
		u, err := s.contract.Update(req.Round, req.Index)
		if err != nil {
			return failure(err)
		}
		return ledger.Response{Update: &u}
	}

	if !req.Method.IsWrite() {
		return failure(fmt.Errorf("unknown method %q: %w", req.Method, ledger.ErrInvalid))
	}

	receipt, err := s.contract.Apply(caller, req)
	if err != nil {
		s.log.Debug("write rejected", "method", req.Method, "round", req.Round, "error", err)
		return failure(err)
	}

	s.signer.Sign(&receipt)

	return ledger.Response{Receipt: &receipt}
}

// failure converts err into a coded response.
func failure(err error) ledger.Response {
	return ledger.Response{Code: ledger.CodeOf(err), Message: err.Error()}
}
