package ledgernode

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func TestReplayCacheHit(t *testing.T) {
	c := NewReplayCache(time.Minute)
	defer c.Close()

	caller, _, _ := ed25519.GenerateKey(rand.Reader)
	req := []byte(`{"method":"closeRound","round":1,"nonce":"n"}`)

	if _, ok := c.Lookup(caller, req); ok {
		t.Fatal("hit before store")
	}

	c.Store(caller, req, []byte("resp"))

	got, ok := c.Lookup(caller, req)
	if !ok || !bytes.Equal(got, []byte("resp")) {
		t.Fatalf("Lookup = %q, %v", got, ok)
	}
}

func TestReplayCacheKeyedByCaller(t *testing.T) {
	c := NewReplayCache(time.Minute)
	defer c.Close()

	a, _, _ := ed25519.GenerateKey(rand.Reader)
	b, _, _ := ed25519.GenerateKey(rand.Reader)
	req := []byte("same bytes")

	c.Store(a, req, []byte("x"))

	if _, ok := c.Lookup(b, req); ok {
		t.Error("different caller hit another caller's entry")
	}
}

func TestReplayCacheExpiry(t *testing.T) {
	c := NewReplayCache(20 * time.Millisecond)
	defer c.Close()

	caller, _, _ := ed25519.GenerateKey(rand.Reader)
	c.Store(caller, []byte("r"), []byte("x"))

	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Lookup(caller, []byte("r")); ok {
		t.Error("expired entry still served")
	}

	c.cleanup()

	if n := c.Len(); n != 0 {
		t.Errorf("Len after cleanup = %d, want 0", n)
	}
}
