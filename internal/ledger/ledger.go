// Package ledger persists open positions to a line-oriented file so the agent
// can pick its book back up after a restart.
package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// BalanceFunc reports how many shares of subject the wallet currently holds.
// Used during reconciliation to recover quantities the file does not encode.
type BalanceFunc func(ctx context.Context, subject common.Address) (*big.Int, error)

// Ledger is the durable book of open positions. Each confirmed buy appends one
// "address, priceWei" line; the in-memory map keeps at most one entry per
// subject, merging repeat buys. All methods are safe for concurrent use.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	file      *os.File
	positions map[common.Address]*domain.Position
}

// Open loads the ledger file at path, creating it if absent. A line that does
// not parse fails the load with domain.ErrLedgerCorrupted so a damaged book is
// never silently truncated.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		logger:    logger.With(slog.String("component", "ledger")),
		positions: make(map[common.Address]*domain.Position),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s for append: %w", path, err)
	}
	l.file = f

	l.logger.Info("ledger loaded",
		slog.String("path", path),
		slog.Int("positions", len(l.positions)))
	return l, nil
}

func (l *Ledger) load() error {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: opening %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		subject, price, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("ledger: %s line %d: %v: %w", l.path, lineNo, err, domain.ErrLedgerCorrupted)
		}
		l.mergeLocked(subject, big.NewInt(1), price, time.Time{})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ledger: reading %s: %w", l.path, err)
	}
	return nil
}

func parseLine(line string) (common.Address, *big.Int, error) {
	parts := strings.SplitN(line, ",", 2)
	if len(parts) != 2 {
		return common.Address{}, nil, errors.New("expected \"address, price\"")
	}
	addr := strings.TrimSpace(parts[0])
	if !common.IsHexAddress(addr) {
		return common.Address{}, nil, fmt.Errorf("bad address %q", addr)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(parts[1]), 10)
	if !ok || price.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("bad price %q", parts[1])
	}
	return common.HexToAddress(addr), price, nil
}

// Record appends a confirmed buy to the file and merges it into the book.
// Repeat buys on the same subject accumulate quantity; the recorded buy price
// stays the first fill's.
func (l *Ledger) Record(subject common.Address, quantity, priceWei *big.Int, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := fmt.Fprintf(l.file, "%s, %s\n", subject.Hex(), priceWei.String()); err != nil {
		return fmt.Errorf("ledger: appending record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("ledger: syncing: %w", err)
	}

	l.mergeLocked(subject, quantity, priceWei, at)
	return nil
}

func (l *Ledger) mergeLocked(subject common.Address, quantity, priceWei *big.Int, at time.Time) {
	if p, ok := l.positions[subject]; ok {
		p.Quantity = new(big.Int).Add(p.Quantity, quantity)
		return
	}
	l.positions[subject] = &domain.Position{
		Subject:     subject,
		Quantity:    new(big.Int).Set(quantity),
		BuyPriceWei: new(big.Int).Set(priceWei),
		OpenedAt:    at,
	}
}

// Reduce decrements the position by quantity after a confirmed sell. When the
// remaining quantity reaches zero the entry is removed and the file compacted.
func (l *Ledger) Reduce(subject common.Address, quantity *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[subject]
	if !ok {
		return domain.ErrNotFound
	}

	p.Quantity = new(big.Int).Sub(p.Quantity, quantity)
	if p.Quantity.Sign() > 0 {
		return nil
	}

	delete(l.positions, subject)
	return l.compactLocked()
}

// Remove drops the position entirely and compacts the file.
func (l *Ledger) Remove(subject common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[subject]; !ok {
		return domain.ErrNotFound
	}
	delete(l.positions, subject)
	return l.compactLocked()
}

// compactLocked rewrites the file to one line per open position. Callers hold
// l.mu, so no append can interleave with the rewrite.
func (l *Ledger) compactLocked() error {
	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("ledger: creating %s: %w", tmp, err)
	}

	subjects := make([]common.Address, 0, len(l.positions))
	for s := range l.positions {
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].Hex() < subjects[j].Hex()
	})

	for _, s := range subjects {
		p := l.positions[s]
		if _, err := fmt.Fprintf(f, "%s, %s\n", p.Subject.Hex(), p.BuyPriceWei.String()); err != nil {
			f.Close()
			return fmt.Errorf("ledger: writing %s: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("ledger: replacing %s: %w", l.path, err)
	}

	old := l.file
	l.file, err = os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("ledger: reopening %s: %w", l.path, err)
	}
	old.Close()
	return nil
}

// Reconcile replaces each loaded quantity with the wallet's actual on-chain
// share balance, dropping subjects the wallet no longer holds. Run once at
// startup, before trading begins.
func (l *Ledger) Reconcile(ctx context.Context, balance BalanceFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for subject, p := range l.positions {
		held, err := balance(ctx, subject)
		if err != nil {
			return fmt.Errorf("ledger: reconciling %s: %w", subject.Hex(), err)
		}
		if held.Sign() == 0 {
			l.logger.Info("dropping position no longer held",
				slog.String("subject", subject.Hex()))
			delete(l.positions, subject)
			changed = true
			continue
		}
		if held.Cmp(p.Quantity) != 0 {
			p.Quantity = new(big.Int).Set(held)
		}
	}

	if changed {
		return l.compactLocked()
	}
	return nil
}

// Get returns the position for subject, if open.
func (l *Ledger) Get(subject common.Address) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[subject]
	if !ok {
		return domain.Position{}, false
	}
	return snapshot(p), true
}

// Has reports whether a position is open for subject.
func (l *Ledger) Has(subject common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[subject]
	return ok
}

// Positions returns a snapshot of all open positions.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, snapshot(p))
	}
	return out
}

// Close releases the file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func snapshot(p *domain.Position) domain.Position {
	return domain.Position{
		Subject:     p.Subject,
		Quantity:    new(big.Int).Set(p.Quantity),
		BuyPriceWei: new(big.Int).Set(p.BuyPriceWei),
		OpenedAt:    p.OpenedAt,
	}
}
