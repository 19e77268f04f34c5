package artifact

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compress zstd-compresses a snapshot payload.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decompress reverses compress.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot:\n%w", err)
	}

	return out, nil
}

// snapshotKey returns the immutable history slot for a round.
func snapshotKey(round uint64) string {
	return fmt.Sprintf("%sround_%d.json.zst", historyDir, round)
}
