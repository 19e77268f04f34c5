package contract

import (
	"errors"

	"ChainFL/internal/ledger"
)

// isNotFound reports whether err is a missing-record error.
func isNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound)
}
