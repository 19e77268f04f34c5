package ledger

import (
	"crypto/ed25519"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"
)

const (
	// BLSPublicKeySize is the size of a compressed BLS public key.
	BLSPublicKeySize = 48

	// BLSSignatureSize is the size of a compressed BLS signature.
	BLSSignatureSize = 96
)

// receiptDST is the domain separation tag for receipt signatures.
var receiptDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// ReceiptSigner signs transaction receipts with a BLS key.
type ReceiptSigner struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// DeriveReceiptSigner derives a deterministic BLS key from the node's ed25519 key,
// so a node keeps the same receipt key across restarts without storing it.
func DeriveReceiptSigner(privKey ed25519.PrivateKey) (*ReceiptSigner, error) {
	h := blake3.New()
	h.Write([]byte("chainfl-receipt-keygen"))
	h.Write(privKey.Seed())

	var seed [32]byte
	h.Sum(seed[:0])

	secret := blst.KeyGen(seed[:])
	if secret == nil {
		return nil, fmt.Errorf("derive BLS key failed")
	}

	return &ReceiptSigner{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// Sign fills r.Signature.
func (s *ReceiptSigner) Sign(r *TxReceipt) {
	sig := new(blst.P2Affine).Sign(s.secret, ReceiptMessage(*r), receiptDST)
	r.Signature = sig.Compress()
}

// PublicKey returns the compressed public key bytes.
func (s *ReceiptSigner) PublicKey() []byte {
	return s.public.Compress()
}

// VerifyReceipt checks a receipt signature against a compressed BLS public key.
func VerifyReceipt(r TxReceipt, publicKey []byte) bool {
	if len(r.Signature) != BLSSignatureSize || len(publicKey) != BLSPublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(r.Signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, ReceiptMessage(r), receiptDST)
}
