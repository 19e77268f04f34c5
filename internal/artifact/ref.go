package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when an artifact does not exist at its location.
	ErrNotFound = errors.New("artifact not found")

	// ErrHashMismatch is returned when artifact bytes do not match the recorded digest.
	ErrHashMismatch = errors.New("artifact hash mismatch")

	// ErrPublishFailed is returned when the global model could not be replaced.
	ErrPublishFailed = errors.New("publish global model failed")

	// ErrMalformed is returned when an artifact is not a valid weight document.
	ErrMalformed = errors.New("malformed weight document")
)

// ContentRef identifies an artifact by location and SHA-256 digest.
type ContentRef struct {
	URI    string `json:"uri"`    // URI is the artifact location (path, file:// or s3://)
	SHA256 string `json:"sha256"` // SHA256 is the lowercase hex digest of the exact bytes
}

// IsZero reports whether the ref is unset.
func (r ContentRef) IsZero() bool {
	return r.URI == "" && r.SHA256 == ""
}

// Matches reports whether data hashes to the ref's digest.
func (r ContentRef) Matches(data []byte) bool {
	return strings.EqualFold(HashBytes(data), r.SHA256)
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether s looks like a hex SHA-256 digest.
func ValidHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}
