package domain

import (
	"math/big"
	"time"
)

// GasQuote is one snapshot of the network fee estimate. The oracle replaces
// the whole quote atomically on every successful refresh; readers may observe
// a quote up to TTL old, never older.
type GasQuote struct {
	BaseFeePerGas *big.Int
	DerivedPrice  *big.Int
	FetchedAt     time.Time
	TTL           time.Duration
}

// Stale reports whether the quote has outlived its TTL at the given time.
func (q GasQuote) Stale(now time.Time) bool {
	return now.Sub(q.FetchedAt) > q.TTL
}
