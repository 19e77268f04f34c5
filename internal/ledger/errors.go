package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRoundClosed       = errors.New("round closed")
	ErrAlreadyClosed     = errors.New("round already closed")
	ErrRoundExists       = errors.New("round already exists")
	ErrNotClosed         = errors.New("round not closed")
	ErrAlreadyAggregated = errors.New("round already aggregated")
	ErrUnauthorized      = errors.New("caller is not the ledger owner")
	ErrOutOfGas          = errors.New("gas limit below required gas")
	ErrInvalid           = errors.New("invalid request")
	ErrDuplicateClient   = errors.New("client already submitted in round")
	ErrBadReceipt        = errors.New("receipt signature invalid")
)

// Error marks a transient ledger failure: transport loss, timeout, node unavailable.
// Contract rejections are returned as the sentinels above instead.
type Error struct {
	Op  string // Op is the ledger method that failed
	Err error  // Err is the underlying cause
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var le *Error
	return errors.As(err, &le)
}

// codes maps contract rejections to wire codes.
var codes = map[error]string{
	ErrNotFound:          "not_found",
	ErrRoundClosed:       "round_closed",
	ErrAlreadyClosed:     "already_closed",
	ErrRoundExists:       "round_exists",
	ErrNotClosed:         "not_closed",
	ErrAlreadyAggregated: "already_aggregated",
	ErrUnauthorized:      "unauthorized",
	ErrOutOfGas:          "out_of_gas",
	ErrInvalid:           "invalid",
	ErrDuplicateClient:   "duplicate_client",
}

// codeInternal marks node-side failures that are not contract rejections.
const codeInternal = "internal"

// CodeOf returns the wire code for err.
func CodeOf(err error) string {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return codeInternal
}

// remoteError is a contract rejection reported by the node.
type remoteError struct {
	sentinel error  // sentinel is the matching local error
	message  string // message is the node's description
}

func (e *remoteError) Error() string { return e.message }
func (e *remoteError) Unwrap() error { return e.sentinel }

// errorOf rebuilds an error from a wire code. Unknown and internal codes are transient.
func errorOf(op, code, message string) error {
	for sentinel, c := range codes {
		if c == code {
			return &remoteError{sentinel: sentinel, message: message}
		}
	}

	return &Error{Op: op, Err: errors.New(message)}
}
