package network

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"ChainFL/internal/logger"
)

// defaultCallTimeout bounds a call whose context carries no deadline.
const defaultCallTimeout = 30 * time.Second

// ErrPeerClosed is returned by Request on a connection that has ended.
var ErrPeerClosed = errors.New("peer connection closed")

// Peer is one authenticated QUIC connection. On the ledger node it is a caller;
// on the coordinator it is the link to the node. Each call uses its own stream.
type Peer struct {
	publicKey ed25519.PublicKey // publicKey is the identity from the remote certificate
	address   string            // address is the remote address
	conn      *quic.Conn        // conn is the underlying QUIC connection
	node      *Node             // node owns the connection
	closed    atomic.Bool       // closed is set once the connection is gone
}

// PublicKey returns the remote identity.
func (p *Peer) PublicKey() ed25519.PublicKey {
	return p.publicKey
}

// Address returns the remote address.
func (p *Peer) Address() string {
	return p.address
}

// Closed reports whether the connection has ended.
func (p *Peer) Closed() bool {
	return p.closed.Load()
}

// Close ends the connection. Calling it again is a no-op.
func (p *Peer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	return p.conn.CloseWithError(0, "closed")
}

// Request sends one call frame and waits for the reply frame.
func (p *Peer) Request(ctx context.Context, data []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrPeerClosed
	}

	stream, err := p.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	} else {
		stream.SetDeadline(time.Now().Add(defaultCallTimeout))
	}

	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("send call:\n%w", err)
	}

	reply, err := readMessage(stream)
	if err != nil {
		return nil, fmt.Errorf("read reply:\n%w", err)
	}

	return reply, nil
}

// acceptCalls answers incoming streams until the connection ends, then
// unregisters the peer.
func (p *Peer) acceptCalls(ctx context.Context) {
	defer func() {
		p.closed.Store(true)
		p.node.removePeer(p)
	}()

	for {
		stream, err := p.conn.AcceptStream(ctx)
		if err != nil {
			logger.Debug("connection ended", "remote", p.address, "error", err)
			return
		}

		go p.answer(stream)
	}
}

// answer reads one call from stream and writes the handler's reply.
// A handler error drops the stream; the caller sees a read failure.
func (p *Peer) answer(stream *quic.Stream) {
	defer stream.Close()

	call, err := readMessage(stream)
	if err != nil {
		logger.Debug("call read failed", "remote", p.address, "error", err)
		return
	}

	reply, err := p.node.callOnRequest(p, call)
	if err != nil {
		logger.Debug("call handler failed", "remote", p.address, "error", err)
		return
	}

	if err := writeMessage(stream, reply); err != nil {
		logger.Debug("reply write failed", "remote", p.address, "error", err)
	}
}
