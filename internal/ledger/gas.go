package ledger

const (
	// GasMarginPercent is the safety margin added on top of an estimate.
	GasMarginPercent = 25

	// FallbackGasLimit is used when estimation fails.
	FallbackGasLimit uint64 = 500_000
)

// GasLimit returns the limit to attach to a write given an estimate attempt.
func GasLimit(estimate uint64, err error) uint64 {
	if err != nil || estimate == 0 {
		return FallbackGasLimit
	}

	margin := (estimate*GasMarginPercent + 99) / 100

	return estimate + margin
}
