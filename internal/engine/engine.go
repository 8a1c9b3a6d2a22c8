// Package engine drives the acquisition pipeline: each trade notification is
// routed to the exit monitor, screened by the heuristics, sized and guarded,
// and finally handed to the executor.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sharesniper/internal/domain"
	"github.com/alanyoungcy/sharesniper/internal/heuristic"
	"github.com/alanyoungcy/sharesniper/internal/ledger"
	"github.com/alanyoungcy/sharesniper/internal/pricing"
)

// BalanceReader fetches native balances.
type BalanceReader interface {
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Buyer submits acquisitions.
type Buyer interface {
	Buy(ctx context.Context, subject common.Address, quantity, buyPrice *big.Int) error
	Halted() bool
}

// ExitRouter receives subjects whose trades may unlock an exit.
type ExitRouter interface {
	OnTrade(subject common.Address)
}

// Engine consumes the notification stream. Evaluations run concurrently up to
// a fixed limit; ordering within a single subject is preserved by the
// executor's serialization, not here.
type Engine struct {
	in       <-chan domain.TradeNotification
	balances BalanceReader
	filter   *heuristic.Filter
	guard    *pricing.Guard
	buyer    Buyer
	exits    ExitRouter
	book     *ledger.Ledger
	logger   *slog.Logger

	// DryRun logs approved acquisitions instead of executing them. Set for
	// watch mode before Run.
	DryRun bool
}

// concurrentEvals bounds in-flight balance fetches and quote calls.
const concurrentEvals = 8

// New builds an Engine reading from in.
func New(in <-chan domain.TradeNotification, balances BalanceReader, filter *heuristic.Filter, guard *pricing.Guard, buyer Buyer, exits ExitRouter, book *ledger.Ledger, logger *slog.Logger) *Engine {
	return &Engine{
		in:       in,
		balances: balances,
		filter:   filter,
		guard:    guard,
		buyer:    buyer,
		exits:    exits,
		book:     book,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// Run processes notifications until the stream closes or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", slog.Bool("dry_run", e.DryRun))
	defer e.logger.Info("engine stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrentEvals)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case n, ok := <-e.in:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				e.handle(gctx, n)
				return nil
			})
		}
	}
}

// handle runs the full pipeline for one notification.
func (e *Engine) handle(ctx context.Context, n domain.TradeNotification) {
	// Any trade touching an owned subject may move its sell quote.
	if e.exits != nil {
		e.exits.OnTrade(n.Subject)
	}

	if e.buyer != nil && e.buyer.Halted() {
		return
	}

	log := e.logger.With(
		slog.String("subject", n.Subject.Hex()),
		slog.String("trader", n.Trader.Hex()),
		slog.String("tx", n.TxHash.Hex()))

	// One position per subject; repeat signals on an open position are noise.
	if e.book.Has(n.Subject) {
		log.Debug("skipping owned subject")
		return
	}

	// The wallet heuristics and sizing read the traded subject's own balance,
	// not the trader's.
	balance, err := e.balances.BalanceAt(ctx, n.Subject)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("subject balance fetch failed", slog.String("error", err.Error()))
		}
		return
	}

	if ok, reason := e.filter.Assess(ctx, n, balance); !ok {
		log.Debug("rejected by heuristics", slog.String("reason", reason))
		return
	}

	decision, ok, reason, err := e.guard.Evaluate(ctx, n.Subject, balance)
	if err != nil {
		log.Warn("pricing evaluation failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		log.Debug("rejected by pricing guard", slog.String("reason", reason))
		return
	}

	if e.DryRun {
		log.Info("would acquire (dry run)",
			slog.String("quantity", decision.Quantity.String()),
			slog.String("buy_price_wei", decision.BuyPrice.String()))
		return
	}

	if err := e.buyer.Buy(ctx, n.Subject, decision.Quantity, decision.BuyPrice); err != nil {
		if errors.Is(err, domain.ErrHalted) {
			return
		}
		log.Error("acquisition failed", slog.String("error", err.Error()))
	}
}
