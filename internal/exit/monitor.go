// Package exit watches open positions and liquidates one share at a time once
// the sell quote clears the profit margin plus gas.
package exit

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/sharesniper/internal/domain"
	"github.com/alanyoungcy/sharesniper/internal/ledger"
)

// Quoter reads sell quotes from the contract.
type Quoter interface {
	GetSellPriceAfterFee(ctx context.Context, subject common.Address, amount *big.Int) (*big.Int, error)
}

// Seller submits liquidations.
type Seller interface {
	Sell(ctx context.Context, subject common.Address, quantity, sellQuote *big.Int) error
	Halted() bool
}

// GasReader exposes the current gas quote for exit cost estimation.
type GasReader interface {
	Quote() (domain.GasQuote, error)
}

// Params tunes the exit rule.
type Params struct {
	// MarginMultiplier scales the recorded buy price; the sell quote must
	// exceed margin*buyPrice plus the estimated exit gas cost.
	MarginMultiplier float64
	// SweepInterval is how often every open position is re-evaluated.
	SweepInterval time.Duration
	// ExitGasUnits estimates the gas a sellShares transaction consumes.
	ExitGasUnits uint64
}

// Monitor evaluates exits two ways: immediately when a trade touches an owned
// subject, and on a periodic sweep over the whole book. Partial liquidations
// sell one share per evaluation; the position stays open until quantity
// reaches zero.
type Monitor struct {
	book   *ledger.Ledger
	quoter Quoter
	seller Seller
	gas    GasReader
	params Params
	logger *slog.Logger

	trigger chan common.Address
}

// NewMonitor builds a Monitor.
func NewMonitor(book *ledger.Ledger, quoter Quoter, seller Seller, gas GasReader, params Params, logger *slog.Logger) *Monitor {
	return &Monitor{
		book:    book,
		quoter:  quoter,
		seller:  seller,
		gas:     gas,
		params:  params,
		logger:  logger.With(slog.String("component", "exit")),
		trigger: make(chan common.Address, 64),
	}
}

// OnTrade queues an immediate evaluation for subject if a position is open.
// Non-blocking; a full queue falls back to the next sweep.
func (m *Monitor) OnTrade(subject common.Address) {
	if !m.book.Has(subject) {
		return
	}
	select {
	case m.trigger <- subject:
	default:
	}
}

// Run evaluates triggered subjects as they arrive and sweeps the whole book
// on every tick, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("exit monitor started",
		slog.Duration("sweep_interval", m.params.SweepInterval))
	defer m.logger.Info("exit monitor stopped")

	ticker := time.NewTicker(m.params.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case subject := <-m.trigger:
			m.evaluate(ctx, subject)
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	for _, p := range m.book.Positions() {
		if ctx.Err() != nil {
			return
		}
		m.evaluate(ctx, p.Subject)
	}
}

// evaluate checks the exit rule for subject and sells one share when it holds.
func (m *Monitor) evaluate(ctx context.Context, subject common.Address) {
	if m.seller.Halted() {
		return
	}

	pos, ok := m.book.Get(subject)
	if !ok {
		return
	}

	one := big.NewInt(1)
	quote, err := m.quoter.GetSellPriceAfterFee(ctx, subject, one)
	if err != nil {
		m.logger.Warn("sell quote failed",
			slog.String("subject", subject.Hex()),
			slog.String("error", err.Error()))
		return
	}
	// A zero quote means the book cannot absorb a sell right now; hold.
	if quote.Sign() == 0 {
		return
	}

	threshold, err := m.threshold(pos.BuyPriceWei)
	if err != nil {
		m.logger.Warn("exit threshold unavailable",
			slog.String("subject", subject.Hex()),
			slog.String("error", err.Error()))
		return
	}

	if quote.Cmp(threshold) <= 0 {
		return
	}

	m.logger.Info("exit rule met, liquidating one share",
		slog.String("subject", subject.Hex()),
		slog.String("quote_wei", quote.String()),
		slog.String("threshold_wei", threshold.String()),
		slog.String("remaining", pos.Quantity.String()))

	if err := m.seller.Sell(ctx, subject, one, quote); err != nil {
		if errors.Is(err, domain.ErrHalted) {
			return
		}
		m.logger.Error("liquidation failed",
			slog.String("subject", subject.Hex()),
			slog.String("error", err.Error()))
	}
}

// threshold returns margin*buyPrice plus the estimated gas cost of the sell.
func (m *Monitor) threshold(buyPrice *big.Int) (*big.Int, error) {
	q, err := m.gas.Quote()
	if err != nil {
		return nil, err
	}

	gasCost := new(big.Int).Mul(q.DerivedPrice, new(big.Int).SetUint64(m.params.ExitGasUnits))

	pct := big.NewInt(int64(m.params.MarginMultiplier * 100))
	margin := new(big.Int).Mul(buyPrice, pct)
	margin.Div(margin, big.NewInt(100))

	return margin.Add(margin, gasCost), nil
}
