package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL. Wei amounts are
// stored as NUMERIC(78,0) and moved through the driver as decimal strings.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

var _ domain.FillStore = (*FillStore)(nil)

const fillSelectCols = `id, subject, side, quantity::text, price_wei::text,
	gas_price_wei::text, nonce, tx_hash, block_number, filled_at`

// Create inserts a confirmed fill.
func (s *FillStore) Create(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (
			id, subject, side, quantity, price_wei, gas_price_wei,
			nonce, tx_hash, block_number, filled_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric,
			$7, $8, $9, $10
		)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.Subject.Hex(), string(f.Side),
		f.Quantity.String(), f.PriceWei.String(), f.GasPriceWei.String(),
		int64(f.Nonce), f.TxHash.Hex(), int64(f.BlockNumber), f.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fill %s: %w", f.ID, err)
	}
	return nil
}

// ListBySubject returns all fills for subject, newest first.
func (s *FillStore) ListBySubject(ctx context.Context, subject common.Address) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 WHERE subject = $1
		 ORDER BY filled_at DESC`, subject.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by subject: %w", err)
	}
	defer rows.Close()

	return scanFillRows(rows)
}

// ListBefore returns all fills confirmed before cutoff, oldest first.
func (s *FillStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 WHERE filled_at < $1
		 ORDER BY filled_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before cutoff: %w", err)
	}
	defer rows.Close()

	return scanFillRows(rows)
}

// DeleteBefore removes fills confirmed before cutoff, returning the count.
func (s *FillStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE filled_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var (
			f                          domain.Fill
			subject, txHash            string
			quantity, price, gasPrice  string
			nonce, blockNumber         int64
		)
		if err := rows.Scan(
			&f.ID, &subject, (*string)(&f.Side), &quantity, &price,
			&gasPrice, &nonce, &txHash, &blockNumber, &f.FilledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}

		f.Subject = common.HexToAddress(subject)
		f.TxHash = common.HexToHash(txHash)
		f.Nonce = uint64(nonce)
		f.BlockNumber = uint64(blockNumber)

		var ok bool
		if f.Quantity, ok = new(big.Int).SetString(quantity, 10); !ok {
			return nil, fmt.Errorf("postgres: bad quantity %q for fill %s", quantity, f.ID)
		}
		if f.PriceWei, ok = new(big.Int).SetString(price, 10); !ok {
			return nil, fmt.Errorf("postgres: bad price %q for fill %s", price, f.ID)
		}
		if f.GasPriceWei, ok = new(big.Int).SetString(gasPrice, 10); !ok {
			return nil, fmt.Errorf("postgres: bad gas price %q for fill %s", gasPrice, f.ID)
		}

		fills = append(fills, f)
	}
	return fills, rows.Err()
}
