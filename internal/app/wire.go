package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/sharesniper/internal/blob/s3"
	"github.com/alanyoungcy/sharesniper/internal/cache/redis"
	"github.com/alanyoungcy/sharesniper/internal/chain"
	"github.com/alanyoungcy/sharesniper/internal/config"
	"github.com/alanyoungcy/sharesniper/internal/domain"
	"github.com/alanyoungcy/sharesniper/internal/ledger"
	"github.com/alanyoungcy/sharesniper/internal/notify"
	"github.com/alanyoungcy/sharesniper/internal/store/postgres"
)

// Dependencies bundles the wired infrastructure the modes build on. Optional
// backends stay nil when disabled in configuration.
type Dependencies struct {
	Chain    *chain.Client
	Contract *chain.SharesContract
	Book     *ledger.Ledger

	Fills     domain.FillStore      // nil unless postgres.enabled
	Blacklist domain.BlacklistStore // nil unless redis.enabled
	Blobs     domain.BlobWriter     // nil unless s3.enabled

	Notifier *notify.Notifier
}

// Wire constructs the concrete dependencies from cfg and returns them with a
// cleanup function to run on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Chain connection ---
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.WSURL, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	contract, err := chain.NewSharesContract(chainClient, common.HexToAddress(cfg.Chain.ContractAddress))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: contract: %w", err)
	}
	deps.Contract = contract

	// --- Position ledger ---
	book, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	closers = append(closers, func() { _ = book.Close() })
	deps.Book = book

	// --- PostgreSQL fill history ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Fills = postgres.NewFillStore(pgClient.Pool())
	}

	// --- Redis shared blacklist ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Blacklist = redis.NewBlacklist(redisClient)
	}

	// --- S3 fill archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Blobs = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
