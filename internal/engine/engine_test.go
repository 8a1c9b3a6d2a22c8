package engine

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sharesniper/internal/domain"
	"github.com/alanyoungcy/sharesniper/internal/heuristic"
	"github.com/alanyoungcy/sharesniper/internal/ledger"
	"github.com/alanyoungcy/sharesniper/internal/pricing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

// fakeBalances answers per address so tests can give the trader and the
// subject different balances.
type fakeBalances struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	fallback *big.Int
	queried  []common.Address
}

func (b *fakeBalances) BalanceAt(_ context.Context, addr common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queried = append(b.queried, addr)
	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int).Set(b.fallback), nil
}

func (b *fakeBalances) queriedAddrs() []common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]common.Address(nil), b.queried...)
}

type buyCall struct {
	subject  common.Address
	quantity *big.Int
	price    *big.Int
}

type fakeBuyer struct {
	mu     sync.Mutex
	halted bool
	calls  []buyCall
}

func (b *fakeBuyer) Buy(_ context.Context, subject common.Address, quantity, price *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, buyCall{subject, quantity, price})
	return nil
}

func (b *fakeBuyer) Halted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halted
}

func (b *fakeBuyer) buys() []buyCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]buyCall(nil), b.calls...)
}

type fakeExits struct {
	mu       sync.Mutex
	subjects []common.Address
}

func (e *fakeExits) OnTrade(subject common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects = append(e.subjects, subject)
}

func (e *fakeExits) seen() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]common.Address(nil), e.subjects...)
}

type fakeQuoter struct{}

func (fakeQuoter) GetBuyPriceAfterFee(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000_000), nil
}

func (fakeQuoter) GetSellPriceAfterFee(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(500_000_000_000_000), nil
}

func testBook(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "positions.txt"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testEngine(t *testing.T, in chan domain.TradeNotification, balances *fakeBalances, buyer Buyer, exits ExitRouter, book *ledger.Ledger) *Engine {
	t.Helper()
	filter := heuristic.NewFilter(heuristic.Params{
		BalanceEpsilonWei:  300_000_000_000_000,
		LowBalanceWei:      5_000_000_000_000_000,
		BotBandLowWei:      95_000_000_000_000_000,
		BotBandHighWei:     105_000_000_000_000_000,
		RecentBalances:     20,
		MaxSelfTradeShares: 4,
	}, nil, testLogger())
	guard := pricing.NewGuard(fakeQuoter{}, pricing.Params{
		TierThresholdsWei:  []int64{30_000_000_000_000_000, 90_000_000_000_000_000, 900_000_000_000_000_000},
		MaxPriceWei:        10_000_000_000_000_000,
		LowTierMaxPriceWei: 2_000_000_000_000_000,
	}, testLogger())
	return New(in, balances, filter, guard, buyer, exits, book, testLogger())
}

func cleanBalances() *fakeBalances {
	return &fakeBalances{fallback: big.NewInt(50_000_000_000_000_000)}
}

func buyNotification(trader, subject common.Address) domain.TradeNotification {
	return domain.TradeNotification{
		Trader:      trader,
		Subject:     subject,
		IsBuy:       true,
		ShareAmount: big.NewInt(1),
		EthAmount:   big.NewInt(1_000_000),
		ProtocolFee: big.NewInt(0),
		SubjectFee:  big.NewInt(0),
		SupplyAfter: big.NewInt(1),
	}
}

func runEngine(t *testing.T, e *Engine, in chan domain.TradeNotification, sends ...domain.TradeNotification) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	for _, n := range sends {
		in <- n
	}
	close(in)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after stream close")
	}
}

func TestRun_AcquiresCleanSignal(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{}
	exits := &fakeExits{}
	e := testEngine(t, in, cleanBalances(), buyer, exits, testBook(t))

	subject := addr(2)
	runEngine(t, e, in, buyNotification(addr(1), subject))

	calls := buyer.buys()
	require.Len(t, calls, 1)
	assert.Equal(t, subject, calls[0].subject)
	assert.Equal(t, int64(2), calls[0].quantity.Int64())
	assert.Equal(t, []common.Address{subject}, exits.seen())
}

func TestRun_SkipsOwnedSubjects(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{}
	exits := &fakeExits{}
	book := testBook(t)
	e := testEngine(t, in, cleanBalances(), buyer, exits, book)

	subject := addr(2)
	require.NoError(t, book.Record(subject, big.NewInt(1), big.NewInt(100), time.Now()))

	runEngine(t, e, in, buyNotification(addr(1), subject))

	assert.Empty(t, buyer.buys())
	// The exit monitor still hears about the trade.
	assert.Equal(t, []common.Address{subject}, exits.seen())
}

func TestRun_HaltedBuyerStopsAcquisition(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{halted: true}
	exits := &fakeExits{}
	e := testEngine(t, in, cleanBalances(), buyer, exits, testBook(t))

	subject := addr(2)
	runEngine(t, e, in, buyNotification(addr(1), subject))

	assert.Empty(t, buyer.buys())
	assert.Equal(t, []common.Address{subject}, exits.seen())
}

func TestRun_DryRunNeverBuys(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{}
	e := testEngine(t, in, cleanBalances(), buyer, &fakeExits{}, testBook(t))
	e.DryRun = true

	runEngine(t, e, in, buyNotification(addr(1), addr(2)))

	assert.Empty(t, buyer.buys())
}

func TestRun_FilteredSignalsAreDropped(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{}
	e := testEngine(t, in, cleanBalances(), buyer, &fakeExits{}, testBook(t))

	sell := buyNotification(addr(1), addr(2))
	sell.IsBuy = false
	bulk := buyNotification(addr(3), addr(4))
	bulk.ShareAmount = big.NewInt(5)

	runEngine(t, e, in, sell, bulk)

	assert.Empty(t, buyer.buys())
}

func TestRun_RejectsSubjectFundedInBotBand(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{}
	trader := addr(1)
	subject := addr(2)

	// The trader's wallet looks organic; the subject's sits squarely in the
	// bot funding band. The signal is the subject's wallet, so this must be
	// rejected.
	balances := &fakeBalances{
		fallback: big.NewInt(1),
		balances: map[common.Address]*big.Int{
			trader:  big.NewInt(50_000_000_000_000_000),
			subject: big.NewInt(100_000_000_000_000_000),
		},
	}
	e := testEngine(t, in, balances, buyer, &fakeExits{}, testBook(t))

	runEngine(t, e, in, buyNotification(trader, subject))

	assert.Empty(t, buyer.buys())
	assert.Equal(t, []common.Address{subject}, balances.queriedAddrs())
}

func TestRun_SizesFromSubjectBalance(t *testing.T) {
	in := make(chan domain.TradeNotification)
	buyer := &fakeBuyer{}
	trader := addr(1)
	subject := addr(2)

	// The subject's wallet clears every tier; the trader's clears none.
	balances := &fakeBalances{
		fallback: big.NewInt(1),
		balances: map[common.Address]*big.Int{
			trader:  big.NewInt(1_000_000_000_000_000),
			subject: big.NewInt(950_000_000_000_000_000),
		},
	}
	e := testEngine(t, in, balances, buyer, &fakeExits{}, testBook(t))

	runEngine(t, e, in, buyNotification(trader, subject))

	calls := buyer.buys()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(4), calls[0].quantity.Int64())
}
