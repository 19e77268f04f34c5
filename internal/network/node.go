package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// alpnProtocol is the ALPN protocol identifier for ledger RPC.
	alpnProtocol = "chainfl-ledger/1"

	// defaultIdleTimeout closes connections with no traffic.
	defaultIdleTimeout = 30 * time.Second

	// defaultKeepAlive keeps idle client connections open.
	defaultKeepAlive = 10 * time.Second
)

// Handler serves one request from a peer and returns the response payload.
type Handler func(p *Peer, req []byte) ([]byte, error)

// Config holds the configuration for a Node.
type Config struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the node's ed25519 identity key
	ListenAddr string             // ListenAddr is the address to listen on; empty for dial-only nodes
}

// Node accepts and initiates QUIC connections authenticated by ed25519 certificates.
type Node struct {
	publicKey  ed25519.PublicKey // publicKey is the node's ed25519 public key
	listenAddr string            // listenAddr is the address to listen on
	tlsConfig  *tls.Config       // tlsConfig is the TLS configuration
	quicConfig *quic.Config      // quicConfig is the QUIC configuration

	listener *quic.Listener // listener is the QUIC listener, nil for dial-only nodes

	peers   map[*Peer]struct{} // peers is the set of live connections
	peersMu sync.RWMutex       // peersMu protects peers

	onConnect    func(*Peer) // onConnect is called when a peer connects
	onDisconnect func(*Peer) // onDisconnect is called when a peer disconnects
	onRequest    Handler     // onRequest serves bidirectional requests
	handlersMu   sync.RWMutex

	ctx    context.Context    // ctx is the node's context
	cancel context.CancelFunc // cancel cancels the node's context
	wg     sync.WaitGroup     // wg waits for goroutines to finish
}

// NewNode creates a new network node.
func NewNode(cfg Config) (*Node, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	cert, err := selfSignedIdentity(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity certificate:\n%w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // identity is the ed25519 key, checked by callers
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  defaultIdleTimeout,
		KeepAlivePeriod: defaultKeepAlive,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		publicKey:  cfg.PrivateKey.Public().(ed25519.PublicKey),
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		peers:      make(map[*Peer]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// PublicKey returns the node's public key.
func (n *Node) PublicKey() ed25519.PublicKey {
	return n.publicKey
}

// Addr returns the listener's address, or "" if not listening.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}

	return n.listener.Addr().String()
}

// Start begins accepting connections on the configured address.
func (n *Node) Start() error {
	if n.listenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	listener, err := quic.ListenAddr(n.listenAddr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	return nil
}

// Connect dials a remote node. The returned peer is not re-dialed on failure;
// callers that need a long-lived link reconnect when Peer.Closed reports true.
func (n *Node) Connect(ctx context.Context, addr string) (*Peer, error) {
	conn, err := quic.DialAddr(ctx, addr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s:\n%w", addr, err)
	}

	peer, err := n.setupPeer(conn, addr)
	if err != nil {
		conn.CloseWithError(1, "setup failed")
		return nil, err
	}

	return peer, nil
}

// Peers returns the live connections.
func (n *Node) Peers() []*Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	peers := make([]*Peer, 0, len(n.peers))
	for p := range n.peers {
		peers = append(peers, p)
	}

	return peers
}

// OnConnect sets the handler called when a peer connects.
func (n *Node) OnConnect(fn func(*Peer)) {
	n.handlersMu.Lock()
	n.onConnect = fn
	n.handlersMu.Unlock()
}

// OnDisconnect sets the handler called when a peer disconnects.
func (n *Node) OnDisconnect(fn func(*Peer)) {
	n.handlersMu.Lock()
	n.onDisconnect = fn
	n.handlersMu.Unlock()
}

// OnRequest sets the handler for incoming requests.
func (n *Node) OnRequest(fn Handler) {
	n.handlersMu.Lock()
	n.onRequest = fn
	n.handlersMu.Unlock()
}

// Close stops the node and closes all connections.
func (n *Node) Close() error {
	n.cancel()

	if n.listener != nil {
		n.listener.Close()
	}

	for _, p := range n.Peers() {
		p.Close()
	}

	n.wg.Wait()

	return nil
}

// acceptLoop accepts incoming connections.
func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			return // listener closed
		}

		peer, err := n.setupPeer(conn, conn.RemoteAddr().String())
		if err != nil {
			conn.CloseWithError(1, "setup failed")
			continue
		}

		n.callOnConnect(peer)
	}
}

// setupPeer registers a connection and starts serving its streams.
func (n *Node) setupPeer(conn *quic.Conn, addr string) (*Peer, error) {
	pubKey, err := remoteIdentity(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("remote identity:\n%w", err)
	}

	peer := &Peer{
		publicKey: pubKey,
		address:   addr,
		conn:      conn,
		node:      n,
	}

	n.peersMu.Lock()
	n.peers[peer] = struct{}{}
	n.peersMu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		peer.acceptCalls(n.ctx)
	}()

	return peer, nil
}

// removePeer drops a disconnected peer and notifies the handler.
func (n *Node) removePeer(p *Peer) {
	n.peersMu.Lock()
	delete(n.peers, p)
	n.peersMu.Unlock()

	n.handlersMu.RLock()
	fn := n.onDisconnect
	n.handlersMu.RUnlock()

	if fn != nil {
		fn(p)
	}
}

// callOnConnect calls the onConnect handler if set.
func (n *Node) callOnConnect(p *Peer) {
	n.handlersMu.RLock()
	fn := n.onConnect
	n.handlersMu.RUnlock()

	if fn != nil {
		fn(p)
	}
}

// callOnRequest calls the onRequest handler if set.
func (n *Node) callOnRequest(p *Peer, data []byte) ([]byte, error) {
	n.handlersMu.RLock()
	fn := n.onRequest
	n.handlersMu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("no request handler registered")
	}

	return fn(p, data)
}

// KeyHex returns the hex encoding of an ed25519 public key.
func KeyHex(k ed25519.PublicKey) string {
	return hex.EncodeToString(k)
}
