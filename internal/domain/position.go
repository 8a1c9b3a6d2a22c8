package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is one open acquisition tracked by the ledger. The ledger holds at
// most one Position per subject; a repeat fill on the same subject merges into
// the existing entry (quantity accumulates, the recorded buy price stays the
// first fill's price).
type Position struct {
	Subject     common.Address
	Quantity    *big.Int
	BuyPriceWei *big.Int
	OpenedAt    time.Time
}

// FillSide distinguishes acquisition fills from liquidation fills.
type FillSide string

const (
	FillSideBuy  FillSide = "buy"
	FillSideSell FillSide = "sell"
)

// Fill is one confirmed on-chain fill, recorded for history and archival.
type Fill struct {
	ID          string
	Subject     common.Address
	Side        FillSide
	Quantity    *big.Int
	PriceWei    *big.Int
	GasPriceWei *big.Int
	Nonce       uint64
	TxHash      common.Hash
	BlockNumber uint64
	FilledAt    time.Time
}
