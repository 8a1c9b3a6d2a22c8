package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sharesniper/internal/archive"
	"github.com/alanyoungcy/sharesniper/internal/crypto"
	"github.com/alanyoungcy/sharesniper/internal/domain"
	"github.com/alanyoungcy/sharesniper/internal/engine"
	"github.com/alanyoungcy/sharesniper/internal/executor"
	"github.com/alanyoungcy/sharesniper/internal/exit"
	"github.com/alanyoungcy/sharesniper/internal/feed"
	"github.com/alanyoungcy/sharesniper/internal/gas"
	"github.com/alanyoungcy/sharesniper/internal/heuristic"
	"github.com/alanyoungcy/sharesniper/internal/ledger"
	"github.com/alanyoungcy/sharesniper/internal/notify"
	"github.com/alanyoungcy/sharesniper/internal/pricing"
	"github.com/alanyoungcy/sharesniper/internal/server"
	"github.com/alanyoungcy/sharesniper/internal/server/handler"
	"github.com/alanyoungcy/sharesniper/internal/server/ws"
)

// Archive cadence for the fill history. Fills stay queryable for a week
// before moving to object storage.
const (
	archiveInterval  = time.Hour
	archiveRetention = 7 * 24 * time.Hour
)

// SnipeMode runs the full trading loop: feed, heuristics, pricing, execution,
// and profit exits.
func (a *App) SnipeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting snipe mode")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keyHex, err := crypto.ResolveKey(crypto.KeySource{
		RawPrivateKey: a.cfg.Wallet.PrivateKey,
		EncryptedPath: a.cfg.Wallet.EncryptedKeyPath,
		Password:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: resolving wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Chain.ChainID)
	if err != nil {
		return fmt.Errorf("app: building signer: %w", err)
	}

	// Recover the real book before trading: quantities come from the chain,
	// not the file.
	err = deps.Book.Reconcile(ctx, func(ctx context.Context, subject common.Address) (*big.Int, error) {
		return deps.Contract.SharesBalance(ctx, subject, signer.Address())
	})
	if err != nil {
		return fmt.Errorf("app: reconciling ledger: %w", err)
	}

	oracle := gas.NewOracle(deps.Chain, gas.Params{
		RefreshInterval: a.cfg.Gas.RefreshInterval.Duration,
		QuoteTTL:        a.cfg.Gas.QuoteTTL.Duration,
		Markup:          a.cfg.Gas.Markup,
		MinMultiplier:   a.cfg.Gas.MinMultiplier,
		MaxMultiplier:   a.cfg.Gas.MaxMultiplier,
	}, a.logger)

	exec := executor.NewExecutor(deps.Chain, deps.Contract, signer, oracle, deps.Book, executor.Params{
		GasLimit:         a.cfg.Gas.GasLimit,
		RateLimitPause:   a.cfg.Retry.RateLimitPause.Duration,
		MaxSubmitRetries: a.cfg.Retry.MaxSubmitRetries,
	}, a.logger)
	if deps.Fills != nil {
		exec.SetFillStore(deps.Fills)
	}

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.logger)
	}

	exec.SetOnFill(func(f domain.Fill) {
		a.announceFill(f, deps.Notifier)
		if hub != nil {
			hub.Broadcast(fillMessage(f))
		}
	})
	exec.SetOnHalt(func(reason string) {
		nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ncancel()
		_ = deps.Notifier.Notify(nctx, notify.EventShutdown, "Sniper halted", reason)
		cancel()
	})

	if err := exec.Start(ctx); err != nil {
		return fmt.Errorf("app: starting executor: %w", err)
	}
	defer exec.Close()

	filter := heuristic.NewFilter(heuristic.Params{
		BalanceEpsilonWei:  a.cfg.Sniper.BalanceEpsilonWei,
		LowBalanceWei:      a.cfg.Sniper.LowBalanceWei,
		BotBandLowWei:      a.cfg.Sniper.BotBandLowWei,
		BotBandHighWei:     a.cfg.Sniper.BotBandHighWei,
		RecentBalances:     a.cfg.Sniper.RecentBalances,
		MaxSelfTradeShares: a.cfg.Sniper.MaxSelfTradeShares,
		Blacklist:          a.cfg.Sniper.Blacklist,
	}, deps.Blacklist, a.logger)

	guard := pricing.NewGuard(deps.Contract, pricing.Params{
		TierThresholdsWei:  a.cfg.Sniper.TierThresholdsWei,
		MaxPriceWei:        a.cfg.Sniper.MaxPriceWei,
		LowTierMaxPriceWei: a.cfg.Sniper.LowTierMaxPriceWei,
	}, a.logger)

	monitor := exit.NewMonitor(deps.Book, deps.Contract, exec, oracle, exit.Params{
		MarginMultiplier: a.cfg.Exit.MarginMultiplier,
		SweepInterval:    a.cfg.Exit.SweepInterval.Duration,
		ExitGasUnits:     a.cfg.Gas.ExitGasUnits,
	}, a.logger)

	tradeFeed := feed.NewTradeFeed(deps.Chain, deps.Contract, feed.Params{
		SubscribeAttempts: a.cfg.Retry.SubscribeAttempts,
		SubscribeBackoff:  a.cfg.Retry.SubscribeBackoff.Duration,
	}, a.logger)

	eng := engine.New(tradeFeed.Notifications(), deps.Chain, filter, guard, exec, monitor, deps.Book, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return oracle.Run(gctx) })
	g.Go(func() error { return tradeFeed.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })

	if deps.Fills != nil && deps.Blobs != nil {
		archiver := archive.New(deps.Fills, deps.Blobs, archive.Params{
			Interval:  archiveInterval,
			Retention: archiveRetention,
		}, a.logger)
		g.Go(func() error { return archiver.Run(gctx) })
	}

	if a.cfg.Server.Enabled {
		a.runServer(gctx, g, deps, hub, "snipe", exec, oracle)
	}

	return g.Wait()
}

// WatchMode runs the full evaluation pipeline without a wallet: approved
// acquisitions are logged, never executed.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	oracle := gas.NewOracle(deps.Chain, gas.Params{
		RefreshInterval: a.cfg.Gas.RefreshInterval.Duration,
		QuoteTTL:        a.cfg.Gas.QuoteTTL.Duration,
		Markup:          a.cfg.Gas.Markup,
		MinMultiplier:   a.cfg.Gas.MinMultiplier,
		MaxMultiplier:   a.cfg.Gas.MaxMultiplier,
	}, a.logger)

	filter := heuristic.NewFilter(heuristic.Params{
		BalanceEpsilonWei:  a.cfg.Sniper.BalanceEpsilonWei,
		LowBalanceWei:      a.cfg.Sniper.LowBalanceWei,
		BotBandLowWei:      a.cfg.Sniper.BotBandLowWei,
		BotBandHighWei:     a.cfg.Sniper.BotBandHighWei,
		RecentBalances:     a.cfg.Sniper.RecentBalances,
		MaxSelfTradeShares: a.cfg.Sniper.MaxSelfTradeShares,
		Blacklist:          a.cfg.Sniper.Blacklist,
	}, deps.Blacklist, a.logger)

	guard := pricing.NewGuard(deps.Contract, pricing.Params{
		TierThresholdsWei:  a.cfg.Sniper.TierThresholdsWei,
		MaxPriceWei:        a.cfg.Sniper.MaxPriceWei,
		LowTierMaxPriceWei: a.cfg.Sniper.LowTierMaxPriceWei,
	}, a.logger)

	tradeFeed := feed.NewTradeFeed(deps.Chain, deps.Contract, feed.Params{
		SubscribeAttempts: a.cfg.Retry.SubscribeAttempts,
		SubscribeBackoff:  a.cfg.Retry.SubscribeBackoff.Duration,
	}, a.logger)

	eng := engine.New(tradeFeed.Notifications(), deps.Chain, filter, guard, nil, nil, deps.Book, a.logger)
	eng.DryRun = true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return oracle.Run(gctx) })
	g.Go(func() error { return tradeFeed.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })

	if a.cfg.Server.Enabled {
		a.runServer(gctx, g, deps, ws.NewHub(a.logger), "watch", nil, oracle)
	}

	return g.Wait()
}

// runServer wires the HTTP API and ties its lifetime to gctx.
func (a *App) runServer(gctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, mode string, exec *executor.Executor, oracle *gas.Oracle) {
	srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, server.Handlers{
		Health:    handler.NewHealthHandler(),
		Status:    handler.NewStatusHandler(&statusSource{mode: mode, exec: exec, book: deps.Book, oracle: oracle}),
		Positions: handler.NewPositionsHandler(deps.Book),
	}, hub, a.logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Shutdown(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
		return gctx.Err()
	})
}

// announceFill forwards a confirmed fill to the notifier.
func (a *App) announceFill(f domain.Fill, notifier *notify.Notifier) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := notify.EventFill
	title := "Shares acquired"
	if f.Side == domain.FillSideSell {
		event = notify.EventLiquidation
		title = "Position liquidated"
	}

	msg := fmt.Sprintf("subject %s\nquantity %s\nprice %s wei\ntx %s",
		f.Subject.Hex(), f.Quantity.String(), f.PriceWei.String(), f.TxHash.Hex())
	if err := notifier.Notify(ctx, event, title, msg); err != nil {
		a.logger.Warn("fill notification failed", slog.String("error", err.Error()))
	}
}

// fillMessage is the WebSocket broadcast payload for a confirmed fill.
func fillMessage(f domain.Fill) map[string]any {
	return map[string]any{
		"type":         "fill",
		"id":           f.ID,
		"subject":      f.Subject.Hex(),
		"side":         string(f.Side),
		"quantity":     f.Quantity.String(),
		"price_wei":    f.PriceWei.String(),
		"tx_hash":      f.TxHash.Hex(),
		"block_number": f.BlockNumber,
		"filled_at":    f.FilledAt.UTC().Format(time.RFC3339),
	}
}

// statusSource adapts the live components to the status endpoint.
type statusSource struct {
	mode   string
	exec   *executor.Executor // nil in watch mode
	book   *ledger.Ledger
	oracle *gas.Oracle
}

func (s *statusSource) Mode() string { return s.mode }

func (s *statusSource) Halted() bool {
	if s.exec == nil {
		return false
	}
	return s.exec.Halted()
}

func (s *statusSource) OpenPositions() int {
	return len(s.book.Positions())
}

func (s *statusSource) GasQuote() (domain.GasQuote, error) {
	return s.oracle.Quote()
}
