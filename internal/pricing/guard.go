// Package pricing sizes acquisitions from the subject's holder-balance tier
// and guards them against bad quotes and price ceilings.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reject reasons returned by Evaluate.
const (
	ReasonZeroBuyQuote  = "zero_buy_quote"
	ReasonZeroSellQuote = "zero_sell_quote"
	ReasonPriceCeiling  = "price_ceiling"
	ReasonLowTierPrice  = "low_tier_price"
)

// Quoter is the contract surface the guard reads quotes from.
type Quoter interface {
	GetBuyPriceAfterFee(ctx context.Context, subject common.Address, amount *big.Int) (*big.Int, error)
	GetSellPriceAfterFee(ctx context.Context, subject common.Address, amount *big.Int) (*big.Int, error)
}

// Params tunes sizing and the price guards.
type Params struct {
	// TierThresholdsWei are strictly increasing balance cut points. A holder
	// balance below the first threshold buys one share; each threshold the
	// balance clears adds one more.
	TierThresholdsWei []int64
	// MaxPriceWei is the absolute per-acquisition cost ceiling.
	MaxPriceWei int64
	// LowTierMaxPriceWei is the tighter ceiling applied to single-share buys.
	LowTierMaxPriceWei int64
}

// Decision is an approved acquisition: how many shares to buy and the quoted
// total cost.
type Decision struct {
	Quantity *big.Int
	BuyPrice *big.Int
}

// Guard evaluates candidate subjects against live quotes.
type Guard struct {
	quoter Quoter
	params Params
	logger *slog.Logger
}

// NewGuard builds a Guard.
func NewGuard(quoter Quoter, params Params, logger *slog.Logger) *Guard {
	return &Guard{
		quoter: quoter,
		params: params,
		logger: logger.With(slog.String("component", "pricing")),
	}
}

// QuantityForBalance returns how many shares to buy for a subject whose
// wallet holds balance: one share below the first tier, one more per tier
// cleared.
func (g *Guard) QuantityForBalance(balance *big.Int) *big.Int {
	qty := int64(1)
	for _, threshold := range g.params.TierThresholdsWei {
		if balance.Cmp(big.NewInt(threshold)) >= 0 {
			qty++
		}
	}
	return big.NewInt(qty)
}

// Evaluate sizes a buy of subject from holderBalance, the subject wallet's
// native balance, and checks it against the quote and ceiling guards. It
// returns the decision, or ok=false with a reject reason. An error means a
// quote call failed and the subject should be skipped, not rejected.
func (g *Guard) Evaluate(ctx context.Context, subject common.Address, holderBalance *big.Int) (Decision, bool, string, error) {
	qty := g.QuantityForBalance(holderBalance)

	buyPrice, err := g.quoter.GetBuyPriceAfterFee(ctx, subject, qty)
	if err != nil {
		return Decision{}, false, "", fmt.Errorf("pricing: buy quote: %w", err)
	}
	if buyPrice.Sign() == 0 {
		return Decision{}, false, ReasonZeroBuyQuote, nil
	}

	// A zero one-share sell quote means the position could never be exited.
	sellOne, err := g.quoter.GetSellPriceAfterFee(ctx, subject, big.NewInt(1))
	if err != nil {
		return Decision{}, false, "", fmt.Errorf("pricing: sell quote: %w", err)
	}
	if sellOne.Sign() == 0 {
		return Decision{}, false, ReasonZeroSellQuote, nil
	}

	if buyPrice.Cmp(big.NewInt(g.params.MaxPriceWei)) > 0 {
		return Decision{}, false, ReasonPriceCeiling, nil
	}
	if qty.Cmp(big.NewInt(2)) < 0 && buyPrice.Cmp(big.NewInt(g.params.LowTierMaxPriceWei)) > 0 {
		return Decision{}, false, ReasonLowTierPrice, nil
	}

	g.logger.Debug("acquisition approved",
		slog.String("subject", subject.Hex()),
		slog.String("quantity", qty.String()),
		slog.String("buy_price_wei", buyPrice.String()))

	return Decision{Quantity: qty, BuyPrice: buyPrice}, true, "", nil
}
