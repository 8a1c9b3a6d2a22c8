package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

type fakeFillStore struct {
	fills   []domain.Fill
	deleted []time.Time
	listErr error
}

func (s *fakeFillStore) Create(context.Context, domain.Fill) error { return nil }

func (s *fakeFillStore) ListBySubject(context.Context, common.Address) ([]domain.Fill, error) {
	return nil, nil
}

func (s *fakeFillStore) ListBefore(_ context.Context, cutoff time.Time) ([]domain.Fill, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Fill
	for _, f := range s.fills {
		if f.FilledAt.Before(cutoff) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeFillStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleted = append(s.deleted, cutoff)
	return int64(len(s.fills)), nil
}

type fakeBlobWriter struct {
	objects map[string]string
	putErr  error
}

func (w *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.putErr != nil {
		return w.putErr
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = map[string]string{}
	}
	w.objects[path] = string(body)
	return nil
}

func oldFill(subject common.Address, age time.Duration, now time.Time) domain.Fill {
	return domain.Fill{
		ID:          "fill-" + subject.Hex(),
		Subject:     subject,
		Side:        domain.FillSideBuy,
		Quantity:    big.NewInt(1),
		PriceWei:    big.NewInt(1000),
		GasPriceWei: big.NewInt(10),
		TxHash:      common.HexToHash("0xabc"),
		BlockNumber: 5,
		FilledAt:    now.Add(-age),
	}
}

func testArchiver(fills domain.FillStore, blobs domain.BlobWriter, now time.Time) *Archiver {
	a := New(fills, blobs, Params{
		Interval:  time.Hour,
		Retention: 7 * 24 * time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return now }
	return a
}

func TestArchiveOnce_UploadsThenPrunes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subject := common.HexToAddress("0x1111111111111111111111111111111111111111")

	store := &fakeFillStore{fills: []domain.Fill{oldFill(subject, 8*24*time.Hour, now)}}
	blobs := &fakeBlobWriter{}

	a := testArchiver(store, blobs, now)
	require.NoError(t, a.ArchiveOnce(context.Background()))

	require.Len(t, blobs.objects, 1)
	for path, body := range blobs.objects {
		assert.True(t, strings.HasPrefix(path, "fills/"))
		assert.True(t, strings.HasSuffix(path, ".csv"))
		assert.Contains(t, body, "id,subject,side")
		assert.Contains(t, body, subject.Hex())
	}
	assert.Len(t, store.deleted, 1)
}

func TestArchiveOnce_NothingToArchive(t *testing.T) {
	now := time.Now()
	subject := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// A fill inside the retention window stays put.
	store := &fakeFillStore{fills: []domain.Fill{oldFill(subject, time.Hour, now)}}
	blobs := &fakeBlobWriter{}

	a := testArchiver(store, blobs, now)
	require.NoError(t, a.ArchiveOnce(context.Background()))

	assert.Empty(t, blobs.objects)
	assert.Empty(t, store.deleted)
}

func TestArchiveOnce_FailedUploadKeepsRows(t *testing.T) {
	now := time.Now()
	subject := common.HexToAddress("0x1111111111111111111111111111111111111111")

	store := &fakeFillStore{fills: []domain.Fill{oldFill(subject, 8*24*time.Hour, now)}}
	blobs := &fakeBlobWriter{putErr: errors.New("bucket unavailable")}

	a := testArchiver(store, blobs, now)
	require.Error(t, a.ArchiveOnce(context.Background()))

	assert.Empty(t, store.deleted, "rows survive a failed upload")
}

func TestArchiveOnce_ListFailure(t *testing.T) {
	store := &fakeFillStore{listErr: errors.New("db down")}
	blobs := &fakeBlobWriter{}

	a := testArchiver(store, blobs, time.Now())
	assert.Error(t, a.ArchiveOnce(context.Background()))
}
