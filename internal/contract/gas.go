package contract

const (
	// gasTxBase is charged for every write.
	gasTxBase = 21_000

	// gasPerPayloadByte is charged per byte of string payload.
	gasPerPayloadByte = 16

	// gasSlotCreate is charged for writing a new key.
	gasSlotCreate = 20_000

	// gasSlotUpdate is charged for overwriting an existing key.
	gasSlotUpdate = 5_000
)

// mutation is one key write planned by a transaction.
type mutation struct {
	key    []byte
	value  []byte
	create bool // create is true when key did not exist before
}

// gasFor prices a planned transaction.
func gasFor(payload int, muts []mutation) uint64 {
	gas := uint64(gasTxBase + payload*gasPerPayloadByte)

	for _, m := range muts {
		if m.create {
			gas += gasSlotCreate
		} else {
			gas += gasSlotUpdate
		}
	}

	return gas
}
