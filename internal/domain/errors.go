package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrPositionOpen    = errors.New("position already open")
	ErrHalted          = errors.New("executor halted")
	ErrStaleQuote      = errors.New("gas quote stale")
	ErrSubExhausted    = errors.New("subscription retries exhausted")
	ErrMalformedEvent  = errors.New("malformed trade event")
	ErrLedgerCorrupted = errors.New("ledger record corrupted")
)

// TxErrorKind classifies transaction and RPC failures so callers can react
// without inspecting provider-specific messages. String matching lives only
// in the chain package as a fallback for transports without structured codes.
type TxErrorKind int

const (
	// TxErrUnknown covers anything the classifier could not place.
	TxErrUnknown TxErrorKind = iota
	// TxErrRateLimited means the provider throttled the request; pause and retry.
	TxErrRateLimited
	// TxErrNonceConflict means the nonce was already used or the tx is already
	// known; resync the nonce from the chain and drop the intent.
	TxErrNonceConflict
	// TxErrInsufficientPayment means the submitted value or gas price no longer
	// satisfies the contract; widen the markup and drop.
	TxErrInsufficientPayment
	// TxErrReverted means the transaction executed and reverted.
	TxErrReverted
)

func (k TxErrorKind) String() string {
	switch k {
	case TxErrRateLimited:
		return "rate_limited"
	case TxErrNonceConflict:
		return "nonce_conflict"
	case TxErrInsufficientPayment:
		return "insufficient_payment"
	case TxErrReverted:
		return "reverted"
	default:
		return "unknown"
	}
}
