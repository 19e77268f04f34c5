package network

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// generateTestKey generates a random ed25519 key pair for testing.
func generateTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

// startServer creates a listening node with handler installed.
func startServer(t *testing.T, handler Handler) *Node {
	t.Helper()

	server, err := NewNode(Config{PrivateKey: generateTestKey(t), ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	server.OnRequest(handler)

	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	t.Cleanup(func() { server.Close() })

	return server
}

// dialClient creates a dial-only node connected to addr.
func dialClient(t *testing.T, addr string) (*Node, *Peer) {
	t.Helper()

	client, err := NewNode(Config{PrivateKey: generateTestKey(t)})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := client.Connect(ctx, addr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	return client, peer
}

// TestStartRequiresListenAddr checks that dial-only nodes cannot listen.
func TestStartRequiresListenAddr(t *testing.T) {
	node, err := NewNode(Config{PrivateKey: generateTestKey(t)})
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	defer node.Close()

	if err := node.Start(); err == nil {
		t.Fatalf("expected error starting without listen address")
	}
}

// TestNewNodeRequiresKey checks the key requirement.
func TestNewNodeRequiresKey(t *testing.T) {
	if _, err := NewNode(Config{ListenAddr: "127.0.0.1:0"}); err == nil {
		t.Fatalf("expected error without private key")
	}
}

// TestRequestResponse tests a request/response round trip.
func TestRequestResponse(t *testing.T) {
	server := startServer(t, func(p *Peer, data []byte) ([]byte, error) {
		return append([]byte("echo:"), data...), nil
	})

	_, peer := dialClient(t, server.Addr())

	response, err := peer.Request(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if !bytes.Equal(response, []byte("echo:hello")) {
		t.Errorf("response = %q, want %q", response, "echo:hello")
	}
}

// TestServerSeesClientIdentity checks that the handler sees the caller's key.
func TestServerSeesClientIdentity(t *testing.T) {
	var (
		mu   sync.Mutex
		seen ed25519.PublicKey
	)

	server := startServer(t, func(p *Peer, data []byte) ([]byte, error) {
		mu.Lock()
		seen = p.PublicKey()
		mu.Unlock()
		return []byte("ok"), nil
	})

	client, peer := dialClient(t, server.Addr())

	if _, err := peer.Request(context.Background(), []byte("who")); err != nil {
		t.Fatalf("request: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if !bytes.Equal(seen, client.PublicKey()) {
		t.Errorf("server saw %x, want %x", seen, client.PublicKey())
	}

	if !bytes.Equal(peer.PublicKey(), server.PublicKey()) {
		t.Errorf("client saw %x, want %x", peer.PublicKey(), server.PublicKey())
	}
}

// TestRequestTimeout tests that a slow handler trips the caller's deadline.
func TestRequestTimeout(t *testing.T) {
	server := startServer(t, func(p *Peer, data []byte) ([]byte, error) {
		time.Sleep(500 * time.Millisecond)
		return []byte("late"), nil
	})

	_, peer := dialClient(t, server.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := peer.Request(ctx, []byte("slow")); err == nil {
		t.Fatalf("expected timeout error")
	}
}

// TestConcurrentRequests checks that streams are served independently.
func TestConcurrentRequests(t *testing.T) {
	server := startServer(t, func(p *Peer, data []byte) ([]byte, error) {
		return data, nil
	})

	_, peer := dialClient(t, server.Addr())

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			msg := []byte{byte(i)}
			resp, err := peer.Request(context.Background(), msg)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(resp, msg) {
				errs <- fmt.Errorf("response %v for request %v", resp, msg)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
}

// TestPeerClosedAfterServerStops checks that the client notices disconnection.
func TestPeerClosedAfterServerStops(t *testing.T) {
	server := startServer(t, func(p *Peer, data []byte) ([]byte, error) {
		return data, nil
	})

	_, peer := dialClient(t, server.Addr())

	if _, err := peer.Request(context.Background(), []byte("x")); err != nil {
		t.Fatalf("request: %v", err)
	}

	server.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !peer.Closed() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if !peer.Closed() {
		t.Fatalf("peer still open after server close")
	}

	if _, err := peer.Request(context.Background(), []byte("y")); !errors.Is(err, ErrPeerClosed) {
		t.Errorf("request on closed peer err = %v, want ErrPeerClosed", err)
	}
}

// TestIdentityCertificateCarriesKey checks that the self-signed identity
// yields the same key on the remote side.
func TestIdentityCertificateCarriesKey(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	cert, err := selfSignedIdentity(priv)
	if err != nil {
		t.Fatalf("selfSignedIdentity: %v", err)
	}

	got, err := remoteIdentity(tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert.Leaf}})
	if err != nil {
		t.Fatalf("remoteIdentity: %v", err)
	}

	if !got.Equal(pub) {
		t.Errorf("remote identity = %x, want %x", got, pub)
	}

	if _, err := remoteIdentity(tls.ConnectionState{}); err == nil {
		t.Error("remoteIdentity accepted a connection without certificates")
	}
}

// TestLargeMessage checks messages near the frame limit.
func TestLargeMessage(t *testing.T) {
	server := startServer(t, func(p *Peer, data []byte) ([]byte, error) {
		return []byte{byte(len(data) % 251)}, nil
	})

	_, peer := dialClient(t, server.Addr())

	msg := make([]byte, 1<<20)
	resp, err := peer.Request(context.Background(), msg)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if resp[0] != byte(len(msg)%251) {
		t.Errorf("unexpected response %v", resp)
	}
}

// TestFrameRoundTrip checks the length-prefixed framing.
func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	if err := writeMessage(&buf, []byte("frame")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "frame" {
		t.Errorf("got %q", got)
	}
}
