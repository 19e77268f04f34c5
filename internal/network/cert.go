package network

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// identityLifetime is the validity window written into identity certificates.
// Nothing checks it; it only has to cover the life of a process.
const identityLifetime = 365 * 24 * time.Hour

// selfSignedIdentity wraps key in a self-signed certificate. The ledger node
// identifies callers by the key itself, so the chain is never verified.
func selfSignedIdentity(key ed25519.PrivateKey) (tls.Certificate, error) {
	pub := key.Public().(ed25519.PublicKey)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("draw serial:\n%w", err)
	}

	now := time.Now()

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "chainfl-" + KeyHex(pub)[:16]},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(identityLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("sign identity certificate:\n%w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse identity certificate:\n%w", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}

// remoteIdentity returns the ed25519 key the other end of a connection presented.
func remoteIdentity(state tls.ConnectionState) (ed25519.PublicKey, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("remote presented no certificate")
	}

	switch key := state.PeerCertificates[0].PublicKey.(type) {
	case ed25519.PublicKey:
		return key, nil
	default:
		return nil, fmt.Errorf("remote certificate carries a %T key, want ed25519", key)
	}
}
