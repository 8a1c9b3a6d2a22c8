// Package executor serializes transaction submission: one nonce sequence, one
// in-flight submission at a time, with drawdown protection and asynchronous
// confirmation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/sharesniper/internal/chain"
	"github.com/alanyoungcy/sharesniper/internal/domain"
	"github.com/alanyoungcy/sharesniper/internal/ledger"
)

// TxBackend is the RPC surface the executor needs.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
}

// TxBuilder constructs unsigned contract transactions.
type TxBuilder interface {
	BuyTx(nonce uint64, gasPrice *big.Int, gasLimit uint64, value *big.Int, subject common.Address, amount *big.Int) (*types.Transaction, error)
	SellTx(nonce uint64, gasPrice *big.Int, gasLimit uint64, subject common.Address, amount *big.Int) (*types.Transaction, error)
}

// TxSigner signs transactions and exposes the wallet address.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// GasPricer supplies per-transaction gas prices.
type GasPricer interface {
	PriceFor(refPrice *big.Int) (*big.Int, error)
	Widen()
}

// Params tunes submission and confirmation behavior.
type Params struct {
	GasLimit         uint64
	RateLimitPause   time.Duration
	MaxSubmitRetries int
	ConfirmPoll      time.Duration
	ConfirmTimeout   time.Duration
}

// Executor owns the wallet's nonce sequence. Every submission goes through a
// single mutex so nonces are assigned strictly in order; confirmation happens
// on background goroutines so the next submission is not blocked on mining.
type Executor struct {
	backend TxBackend
	builder TxBuilder
	signer  TxSigner
	gas     GasPricer
	book    *ledger.Ledger
	params  Params
	logger  *slog.Logger

	fills  domain.FillStore   // optional
	onFill func(domain.Fill)  // optional, called after confirmation
	onHalt func(reason string) // optional, called once on drawdown halt

	mu        sync.Mutex
	nonce     uint64
	nonceInit bool

	halted         atomic.Bool
	startBalance   *big.Int
	drawdownFloor  *big.Int
	confirmWG      sync.WaitGroup
}

// NewExecutor builds an Executor. Start must be called before Buy or Sell.
func NewExecutor(backend TxBackend, builder TxBuilder, signer TxSigner, gas GasPricer, book *ledger.Ledger, params Params, logger *slog.Logger) *Executor {
	if params.ConfirmPoll <= 0 {
		params.ConfirmPoll = 2 * time.Second
	}
	if params.ConfirmTimeout <= 0 {
		params.ConfirmTimeout = 2 * time.Minute
	}
	return &Executor{
		backend: backend,
		builder: builder,
		signer:  signer,
		gas:     gas,
		book:    book,
		params:  params,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// SetFillStore enables fill history recording.
func (e *Executor) SetFillStore(fills domain.FillStore) { e.fills = fills }

// SetOnFill registers a callback invoked after every confirmed fill.
func (e *Executor) SetOnFill(fn func(domain.Fill)) { e.onFill = fn }

// SetOnHalt registers a callback invoked once when the drawdown guard trips.
func (e *Executor) SetOnHalt(fn func(reason string)) { e.onHalt = fn }

// Start seeds the nonce sequence and records the starting balance for the
// drawdown guard.
func (e *Executor) Start(ctx context.Context) error {
	bal, err := e.backend.BalanceAt(ctx, e.signer.Address())
	if err != nil {
		return fmt.Errorf("executor: reading start balance: %w", err)
	}
	e.startBalance = bal
	e.drawdownFloor = new(big.Int).Div(bal, big.NewInt(2))

	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.backend.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		return fmt.Errorf("executor: seeding nonce: %w", err)
	}
	e.nonce = n
	e.nonceInit = true

	e.logger.Info("executor started",
		slog.String("wallet", e.signer.Address().Hex()),
		slog.Uint64("nonce", n),
		slog.String("start_balance_wei", bal.String()))
	return nil
}

// Halted reports whether the drawdown guard has tripped.
func (e *Executor) Halted() bool {
	return e.halted.Load()
}

// Buy submits a buyShares transaction paying buyPrice wei and confirms it in
// the background. The position is recorded only after on-chain confirmation.
func (e *Executor) Buy(ctx context.Context, subject common.Address, quantity, buyPrice *big.Int) error {
	if e.halted.Load() {
		return domain.ErrHalted
	}
	if err := e.checkDrawdown(ctx); err != nil {
		return err
	}

	gasPrice, err := e.gas.PriceFor(buyPrice)
	if err != nil {
		return fmt.Errorf("executor: pricing buy gas: %w", err)
	}

	tx, nonce, err := e.submit(ctx, func(n uint64) (*types.Transaction, error) {
		return e.builder.BuyTx(n, gasPrice, e.params.GasLimit, buyPrice, subject, quantity)
	})
	if err != nil {
		return err
	}

	e.logger.Info("buy submitted",
		slog.String("subject", subject.Hex()),
		slog.String("quantity", quantity.String()),
		slog.String("price_wei", buyPrice.String()),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("nonce", nonce))

	e.confirmWG.Add(1)
	go e.confirm(tx.Hash(), domain.Fill{
		ID:          uuid.New().String(),
		Subject:     subject,
		Side:        domain.FillSideBuy,
		Quantity:    quantity,
		PriceWei:    buyPrice,
		GasPriceWei: gasPrice,
		Nonce:       nonce,
		TxHash:      tx.Hash(),
	})
	return nil
}

// Sell submits a sellShares transaction and confirms it in the background.
// sellQuote is the quoted proceeds, used for gas pricing and fill recording.
func (e *Executor) Sell(ctx context.Context, subject common.Address, quantity, sellQuote *big.Int) error {
	if e.halted.Load() {
		return domain.ErrHalted
	}

	gasPrice, err := e.gas.PriceFor(sellQuote)
	if err != nil {
		return fmt.Errorf("executor: pricing sell gas: %w", err)
	}

	tx, nonce, err := e.submit(ctx, func(n uint64) (*types.Transaction, error) {
		return e.builder.SellTx(n, gasPrice, e.params.GasLimit, subject, quantity)
	})
	if err != nil {
		return err
	}

	e.logger.Info("sell submitted",
		slog.String("subject", subject.Hex()),
		slog.String("quantity", quantity.String()),
		slog.String("quote_wei", sellQuote.String()),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("nonce", nonce))

	e.confirmWG.Add(1)
	go e.confirm(tx.Hash(), domain.Fill{
		ID:          uuid.New().String(),
		Subject:     subject,
		Side:        domain.FillSideSell,
		Quantity:    quantity,
		PriceWei:    sellQuote,
		GasPriceWei: gasPrice,
		Nonce:       nonce,
		TxHash:      tx.Hash(),
	})
	return nil
}

// Close waits for in-flight confirmations to finish.
func (e *Executor) Close() {
	e.confirmWG.Wait()
}

// submit builds, signs and sends a transaction under the nonce mutex. The
// nonce advances only on a successful send; a nonce conflict resyncs it from
// the chain; rate limiting pauses and retries up to MaxSubmitRetries times.
func (e *Executor) submit(ctx context.Context, build func(nonce uint64) (*types.Transaction, error)) (*types.Transaction, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.nonceInit {
		return nil, 0, errors.New("executor: not started")
	}

	for attempt := 0; ; attempt++ {
		nonce := e.nonce

		tx, err := build(nonce)
		if err != nil {
			return nil, 0, fmt.Errorf("executor: building tx: %w", err)
		}
		signed, err := e.signer.SignTx(tx)
		if err != nil {
			return nil, 0, fmt.Errorf("executor: signing tx: %w", err)
		}

		sendErr := e.backend.SendTransaction(ctx, signed)
		if sendErr == nil {
			e.nonce++
			return signed, nonce, nil
		}

		switch kind := chain.Classify(sendErr); kind {
		case domain.TxErrRateLimited:
			if attempt >= e.params.MaxSubmitRetries {
				return nil, 0, fmt.Errorf("executor: rate limited after %d attempts: %w", attempt+1, sendErr)
			}
			e.logger.Warn("rate limited, pausing submissions",
				slog.Duration("pause", e.params.RateLimitPause))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(e.params.RateLimitPause):
			}

		case domain.TxErrNonceConflict:
			fresh, nerr := e.backend.PendingNonceAt(ctx, e.signer.Address())
			if nerr != nil {
				return nil, 0, fmt.Errorf("executor: resyncing nonce: %w", nerr)
			}
			e.logger.Warn("nonce conflict, resynced",
				slog.Uint64("was", e.nonce),
				slog.Uint64("now", fresh))
			e.nonce = fresh
			return nil, 0, fmt.Errorf("executor: nonce conflict, intent dropped: %w", sendErr)

		case domain.TxErrInsufficientPayment:
			e.gas.Widen()
			return nil, 0, fmt.Errorf("executor: insufficient payment, intent dropped: %w", sendErr)

		default:
			return nil, 0, fmt.Errorf("executor: send failed (%s): %w", kind, sendErr)
		}
	}
}

// confirm polls for the receipt and, on success, records the fill in the
// ledger (buys append, sells reduce), the fill store, and the fill callback.
func (e *Executor) confirm(hash common.Hash, fill domain.Fill) {
	defer e.confirmWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.params.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.params.ConfirmPoll)
	defer ticker.Stop()

	log := e.logger.With(
		slog.String("tx", hash.Hex()),
		slog.String("subject", fill.Subject.Hex()),
		slog.String("side", string(fill.Side)))

	for {
		select {
		case <-ctx.Done():
			log.Warn("confirmation timed out")
			return
		case <-ticker.C:
		}

		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			continue // still pending
		}

		if receipt.Status != types.ReceiptStatusSuccessful {
			log.Error("transaction reverted",
				slog.Uint64("block", receipt.BlockNumber.Uint64()))
			return
		}

		fill.BlockNumber = receipt.BlockNumber.Uint64()
		fill.FilledAt = time.Now().UTC()

		switch fill.Side {
		case domain.FillSideBuy:
			if err := e.book.Record(fill.Subject, fill.Quantity, fill.PriceWei, fill.FilledAt); err != nil {
				log.Error("recording position failed", slog.String("error", err.Error()))
			}
		case domain.FillSideSell:
			if err := e.book.Reduce(fill.Subject, fill.Quantity); err != nil && !errors.Is(err, domain.ErrNotFound) {
				log.Error("reducing position failed", slog.String("error", err.Error()))
			}
		}

		if e.fills != nil {
			if err := e.fills.Create(ctx, fill); err != nil {
				log.Warn("fill history write failed", slog.String("error", err.Error()))
			}
		}
		if e.onFill != nil {
			e.onFill(fill)
		}

		log.Info("fill confirmed", slog.Uint64("block", fill.BlockNumber))
		return
	}
}

// checkDrawdown halts the executor once the wallet balance drops to half the
// starting balance.
func (e *Executor) checkDrawdown(ctx context.Context) error {
	bal, err := e.backend.BalanceAt(ctx, e.signer.Address())
	if err != nil {
		return fmt.Errorf("executor: reading balance: %w", err)
	}
	if bal.Cmp(e.drawdownFloor) > 0 {
		return nil
	}

	if e.halted.CompareAndSwap(false, true) {
		e.logger.Error("drawdown guard tripped, halting",
			slog.String("balance_wei", bal.String()),
			slog.String("floor_wei", e.drawdownFloor.String()))
		if e.onHalt != nil {
			e.onHalt("balance fell to half the starting balance")
		}
	}
	return domain.ErrHalted
}
