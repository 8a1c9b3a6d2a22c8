// Package archive exports aged fill history to object storage and prunes it
// from the database.
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// Params tunes the archiver.
type Params struct {
	// Interval is how often the archiver wakes up.
	Interval time.Duration
	// Retention is how long fills stay in the database before being exported
	// and deleted.
	Retention time.Duration
}

// Archiver periodically exports fills older than the retention window to a
// CSV object, then deletes them. The upload happens before the delete, so a
// failed upload keeps the rows in place.
type Archiver struct {
	fills  domain.FillStore
	blobs  domain.BlobWriter
	params Params
	logger *slog.Logger

	now func() time.Time
}

// New builds an Archiver.
func New(fills domain.FillStore, blobs domain.BlobWriter, params Params, logger *slog.Logger) *Archiver {
	return &Archiver{
		fills:  fills,
		blobs:  blobs,
		params: params,
		logger: logger.With(slog.String("component", "archive")),
		now:    time.Now,
	}
}

// Run archives on every interval tick until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Warn("archive cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce exports and prunes everything older than the retention window.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.params.Retention)

	fills, err := a.fills.ListBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: listing fills: %w", err)
	}
	if len(fills) == 0 {
		return nil
	}

	body, err := encodeCSV(fills)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("fills/%s.csv", cutoff.Format("2006-01-02T15-04-05"))
	if err := a.blobs.Put(ctx, path, bytes.NewReader(body), "text/csv"); err != nil {
		return fmt.Errorf("archive: uploading %s: %w", path, err)
	}

	deleted, err := a.fills.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: pruning fills: %w", err)
	}

	a.logger.Info("fills archived",
		slog.String("object", path),
		slog.Int("exported", len(fills)),
		slog.Int64("deleted", deleted))
	return nil
}

func encodeCSV(fills []domain.Fill) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "subject", "side", "quantity", "price_wei",
		"gas_price_wei", "nonce", "tx_hash", "block_number", "filled_at"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("archive: writing csv header: %w", err)
	}

	for _, f := range fills {
		row := []string{
			f.ID,
			f.Subject.Hex(),
			string(f.Side),
			f.Quantity.String(),
			f.PriceWei.String(),
			f.GasPriceWei.String(),
			fmt.Sprintf("%d", f.Nonce),
			f.TxHash.Hex(),
			fmt.Sprintf("%d", f.BlockNumber),
			f.FilledAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("archive: writing csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("archive: flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}
