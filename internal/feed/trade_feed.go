// Package feed subscribes to the shares contract's Trade events and turns raw
// logs into domain notifications.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// LogSource opens log subscriptions.
type LogSource interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Decoder turns contract logs into trade notifications and identifies the
// contract and event to filter on.
type Decoder interface {
	Address() common.Address
	TradeTopic() common.Hash
	DecodeTrade(log types.Log) (domain.TradeNotification, error)
}

// Params tunes subscription retry behavior.
type Params struct {
	// SubscribeAttempts bounds how many times one subscription cycle retries
	// before the feed gives up with domain.ErrSubExhausted.
	SubscribeAttempts int
	SubscribeBackoff  time.Duration
}

// TradeFeed maintains a WebSocket log subscription filtered to the contract's
// Trade events, resubscribing when the stream drops. Decoded notifications
// are delivered on the Notifications channel in arrival order.
type TradeFeed struct {
	source  LogSource
	decoder Decoder
	params  Params
	logger  *slog.Logger

	out chan domain.TradeNotification
}

// NewTradeFeed builds a TradeFeed.
func NewTradeFeed(source LogSource, decoder Decoder, params Params, logger *slog.Logger) *TradeFeed {
	return &TradeFeed{
		source:  source,
		decoder: decoder,
		params:  params,
		logger:  logger.With(slog.String("component", "feed")),
		out:     make(chan domain.TradeNotification, 256),
	}
}

// Notifications returns the stream of decoded trades. The channel is closed
// when Run returns.
func (f *TradeFeed) Notifications() <-chan domain.TradeNotification {
	return f.out
}

// Run subscribes and pumps events until ctx is cancelled or a subscription
// cycle exhausts its retries.
func (f *TradeFeed) Run(ctx context.Context) error {
	defer close(f.out)

	f.logger.Info("trade feed started",
		slog.String("contract", f.decoder.Address().Hex()))
	defer f.logger.Info("trade feed stopped")

	for {
		sub, logs, err := f.subscribe(ctx)
		if err != nil {
			return err
		}

		err = f.pump(ctx, sub, logs)
		sub.Unsubscribe()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("subscription dropped, resubscribing",
				slog.String("error", err.Error()))
			continue
		}
		return nil
	}
}

// subscribe opens the filtered log subscription, retrying up to the configured
// attempt count with a fixed backoff.
func (f *TradeFeed) subscribe(ctx context.Context) (ethereum.Subscription, chan types.Log, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{f.decoder.Address()},
		Topics:    [][]common.Hash{{f.decoder.TradeTopic()}},
	}

	var lastErr error
	for attempt := 1; attempt <= f.params.SubscribeAttempts; attempt++ {
		logs := make(chan types.Log, 256)
		sub, err := f.source.SubscribeFilterLogs(ctx, query, logs)
		if err == nil {
			f.logger.Info("subscribed to trade events",
				slog.Int("attempt", attempt))
			return sub, logs, nil
		}
		lastErr = err

		f.logger.Warn("subscribe failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", f.params.SubscribeAttempts),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(f.params.SubscribeBackoff):
		}
	}

	return nil, nil, fmt.Errorf("feed: %d subscribe attempts failed: %v: %w",
		f.params.SubscribeAttempts, lastErr, domain.ErrSubExhausted)
}

// pump forwards decoded logs until the subscription errors or ctx is
// cancelled. Malformed logs are logged and skipped, never fatal.
func (f *TradeFeed) pump(ctx context.Context, sub ethereum.Subscription, logs chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case log := <-logs:
			n, err := f.decoder.DecodeTrade(log)
			if err != nil {
				f.logger.Warn("dropping undecodable log",
					slog.String("tx", log.TxHash.Hex()),
					slog.String("error", err.Error()))
				continue
			}
			select {
			case f.out <- n:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
