package contract

import "encoding/binary"

var (
	keyCurrent   = []byte("m/current")
	prefixRound  = []byte("r/")
	prefixUpdate = []byte("u/")
	prefixTx     = []byte("t/")
	prefixClient = []byte("c/")
)

// roundKey returns the key of a round record.
func roundKey(round uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixRound...), round)
}

// updateKey returns the key of update index within round.
// Big-endian encoding keeps a round's updates contiguous and ordered.
func updateKey(round uint64, index uint64) []byte {
	k := binary.BigEndian.AppendUint64(append([]byte{}, prefixUpdate...), round)
	return binary.BigEndian.AppendUint64(k, index)
}

// clientKey returns the key marking that clientID holds an update in round.
func clientKey(round uint64, clientID string) []byte {
	k := binary.BigEndian.AppendUint64(append([]byte{}, prefixClient...), round)
	return append(k, clientID...)
}

// txKey returns the key recording an applied transaction.
func txKey(hash [32]byte) []byte {
	return append(append([]byte{}, prefixTx...), hash[:]...)
}

// encodeUint64 encodes a big-endian counter.
func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// decodeUint64 decodes a big-endian counter; short input reads as 0.
func decodeUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
