package client

import (
	"fmt"
	"os"
	"path/filepath"

	"ChainFL/internal/artifact"
)

// Update is a weight document written to disk and ready to announce.
type Update struct {
	Path string // Path is the absolute file path
	Hash string // Hash is the lowercase hex SHA-256 of the file bytes
	Size uint64 // Size is the aggregation weight, normally the local sample count
}

// PrepareUpdate writes weights as a weight document under dir and hashes it.
// name is the file name without extension.
func PrepareUpdate(dir, name string, weights []float64, size uint64) (Update, error) {
	data, err := artifact.EncodeWeights(weights)
	if err != nil {
		return Update{}, fmt.Errorf("encode weights:\n%w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Update{}, fmt.Errorf("create %s:\n%w", dir, err)
	}

	path, err := filepath.Abs(filepath.Join(dir, name+".json"))
	if err != nil {
		return Update{}, fmt.Errorf("resolve path:\n%w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Update{}, fmt.Errorf("write %s:\n%w", path, err)
	}

	return Update{Path: path, Hash: artifact.HashBytes(data), Size: size}, nil
}

// LoadWeights reads a weight document, checking it against hash when given.
func LoadWeights(path, hash string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s:\n%w", path, err)
	}

	if hash != "" && !(artifact.ContentRef{SHA256: hash}).Matches(data) {
		return nil, fmt.Errorf("%s: %w", path, artifact.ErrHashMismatch)
	}

	return artifact.DecodeWeights(data)
}
