// Package gas maintains a periodically refreshed gas price quote and derives
// per-transaction prices from it.
package gas

import (
	"context"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// PriceSource is the RPC surface the oracle needs.
type PriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Params tunes the oracle.
type Params struct {
	RefreshInterval time.Duration
	QuoteTTL        time.Duration
	// Markup scales the node estimate into the quote's derived price.
	Markup float64
	// MinMultiplier applies on top of the derived price for cheap buys,
	// MaxMultiplier for expensive ones (and while widened).
	MinMultiplier float64
	MaxMultiplier float64
}

// Oracle refreshes a gas quote on a fixed interval and hands out prices for
// individual transactions. All methods are safe for concurrent use; the quote
// is replaced atomically and a failed refresh keeps the previous quote.
type Oracle struct {
	source PriceSource
	params Params
	logger *slog.Logger

	quote       atomic.Pointer[domain.GasQuote]
	widenedTill atomic.Int64 // unix nanos; 0 when not widened

	now func() time.Time
}

// NewOracle creates an Oracle. It holds no quote until Refresh or Run succeeds.
func NewOracle(source PriceSource, params Params, logger *slog.Logger) *Oracle {
	return &Oracle{
		source: source,
		params: params,
		logger: logger.With(slog.String("component", "gas_oracle")),
		now:    time.Now,
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
func (o *Oracle) Run(ctx context.Context) error {
	if err := o.Refresh(ctx); err != nil {
		o.logger.Warn("initial gas refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(o.params.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Refresh(ctx); err != nil {
				// Keep serving the previous quote until it goes stale.
				o.logger.Warn("gas refresh failed, keeping previous quote",
					slog.String("error", err.Error()))
			}
		}
	}
}

// Refresh fetches the node estimate and replaces the stored quote.
func (o *Oracle) Refresh(ctx context.Context) error {
	base, err := o.source.SuggestGasPrice(ctx)
	if err != nil {
		return err
	}

	q := &domain.GasQuote{
		BaseFeePerGas: base,
		DerivedPrice:  mulFloat(base, o.params.Markup),
		FetchedAt:     o.now(),
		TTL:           o.params.QuoteTTL,
	}
	o.quote.Store(q)

	o.logger.Debug("gas quote refreshed",
		slog.String("base_fee_wei", base.String()),
		slog.String("derived_wei", q.DerivedPrice.String()))
	return nil
}

// Quote returns the current quote, or domain.ErrStaleQuote when no refresh has
// succeeded within the TTL.
func (o *Oracle) Quote() (domain.GasQuote, error) {
	q := o.quote.Load()
	if q == nil || q.Stale(o.now()) {
		return domain.GasQuote{}, domain.ErrStaleQuote
	}
	return *q, nil
}

// PriceFor returns the gas price to attach to a buy whose total cost is
// buyPrice. Cheap buys ride the minimum multiplier; buys costing more than the
// current base fee, or any buy while the oracle is widened, pay the maximum.
func (o *Oracle) PriceFor(buyPrice *big.Int) (*big.Int, error) {
	q, err := o.Quote()
	if err != nil {
		return nil, err
	}

	mult := o.params.MinMultiplier
	if buyPrice.Cmp(q.BaseFeePerGas) >= 0 || o.widened() {
		mult = o.params.MaxMultiplier
	}
	return mulFloat(q.DerivedPrice, mult), nil
}

// Widen forces the maximum multiplier for the next two refresh intervals.
// Called after the contract rejects a buy for insufficient payment.
func (o *Oracle) Widen() {
	o.widenedTill.Store(o.now().Add(2 * o.params.RefreshInterval).UnixNano())
	o.logger.Info("gas pricing widened")
}

func (o *Oracle) widened() bool {
	return o.now().UnixNano() < o.widenedTill.Load()
}

// mulFloat scales a wei amount by a small float factor using integer percent
// math, avoiding float drift on large values.
func mulFloat(x *big.Int, f float64) *big.Int {
	pct := big.NewInt(int64(f * 100))
	out := new(big.Int).Mul(x, pct)
	return out.Div(out, big.NewInt(100))
}
