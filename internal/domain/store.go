package domain

import (
	"context"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FillStore records confirmed fills for history and reporting. The file-based
// position ledger is the source of truth for open positions; the fill store is
// an optional audit trail.
type FillStore interface {
	Create(ctx context.Context, f Fill) error
	ListBySubject(ctx context.Context, subject common.Address) ([]Fill, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]Fill, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlacklistStore is a persistent set of subject addresses excluded from
// acquisition, shared across restarts (and across agents when backed by Redis).
type BlacklistStore interface {
	Contains(ctx context.Context, subject common.Address) (bool, error)
	Add(ctx context.Context, subject common.Address) error
}

// BlobWriter uploads archive objects (closed-fill exports) to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
