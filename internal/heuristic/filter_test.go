package heuristic

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() Params {
	return Params{
		BalanceEpsilonWei:  300_000_000_000_000,
		LowBalanceWei:      5_000_000_000_000_000,
		BotBandLowWei:      95_000_000_000_000_000,
		BotBandHighWei:     105_000_000_000_000_000,
		RecentBalances:     20,
		MaxSelfTradeShares: 4,
	}
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func buyNotification(trader, subject common.Address, shares int64) domain.TradeNotification {
	return domain.TradeNotification{
		Trader:      trader,
		Subject:     subject,
		IsBuy:       true,
		ShareAmount: big.NewInt(shares),
		EthAmount:   big.NewInt(1_000_000),
		ProtocolFee: big.NewInt(0),
		SubjectFee:  big.NewInt(0),
		SupplyAfter: big.NewInt(1),
	}
}

func TestAssess_RejectsSells(t *testing.T) {
	f := NewFilter(testParams(), nil, testLogger())

	n := buyNotification(addr(1), addr(2), 1)
	n.IsBuy = false

	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.False(t, ok)
	assert.Equal(t, ReasonNotBuy, reason)
}

func TestAssess_RejectsBulkBuys(t *testing.T) {
	f := NewFilter(testParams(), nil, testLogger())

	n := buyNotification(addr(1), addr(2), 3)

	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.False(t, ok)
	assert.Equal(t, ReasonBulkBuy, reason)
}

func TestAssess_AllowsSmallSelfTrade(t *testing.T) {
	f := NewFilter(testParams(), nil, testLogger())

	// Subject seeding their own book with 4 shares is allowed.
	n := buyNotification(addr(1), addr(1), 4)

	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.True(t, ok, "reason: %s", reason)
}

func TestAssess_RejectsLargeSelfTrade(t *testing.T) {
	f := NewFilter(testParams(), nil, testLogger())

	n := buyNotification(addr(1), addr(1), 5)

	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.False(t, ok)
	assert.Equal(t, ReasonBulkBuy, reason)
}

func TestAssess_RejectsFundingBand(t *testing.T) {
	f := NewFilter(testParams(), nil, testLogger())

	// Exactly 0.1 native units sits inside the typical bot funding band.
	n := buyNotification(addr(1), addr(2), 1)
	balance := big.NewInt(100_000_000_000_000_000)

	ok, reason := f.Assess(context.Background(), n, balance)
	assert.False(t, ok)
	assert.Equal(t, ReasonFundingBand, reason)
}

func TestAssess_RejectsClusteredBalances(t *testing.T) {
	f := NewFilter(testParams(), nil, testLogger())

	first := buyNotification(addr(1), addr(2), 1)
	ok, _ := f.Assess(context.Background(), first, big.NewInt(7_000_000_000_000_000))
	require.True(t, ok)

	// A second wallet within epsilon of the first looks batch-funded.
	second := buyNotification(addr(3), addr(4), 1)
	close := big.NewInt(7_000_000_000_000_000 + 100_000_000_000_000)

	ok, reason := f.Assess(context.Background(), second, close)
	assert.False(t, ok)
	assert.Equal(t, ReasonBalanceCluster, reason)
}

func TestAssess_BalanceWindowEvicts(t *testing.T) {
	params := testParams()
	params.RecentBalances = 2
	f := NewFilter(params, nil, testLogger())

	base := big.NewInt(1_000_000_000_000_000_000)
	step := big.NewInt(10_000_000_000_000_000)

	// Fill the window past capacity; the first balance should age out.
	for i := int64(0); i < 3; i++ {
		bal := new(big.Int).Add(base, new(big.Int).Mul(step, big.NewInt(i)))
		n := buyNotification(addr(byte(10+i)), addr(byte(20+i)), 1)
		ok, reason := f.Assess(context.Background(), n, bal)
		require.True(t, ok, "fill %d rejected: %s", i, reason)
	}

	// Same balance as the evicted first entry is accepted again.
	n := buyNotification(addr(30), addr(31), 1)
	ok, reason := f.Assess(context.Background(), n, new(big.Int).Set(base))
	assert.True(t, ok, "reason: %s", reason)
}

func TestAssess_RejectsLocalBlacklist(t *testing.T) {
	params := testParams()
	subject := addr(9)
	params.Blacklist = []string{subject.Hex()}
	f := NewFilter(params, nil, testLogger())

	n := buyNotification(addr(1), subject, 1)

	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.False(t, ok)
	assert.Equal(t, ReasonBlacklisted, reason)
}

func TestAssess_LogsNearEmptyHolderWallet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := NewFilter(testParams(), nil, logger)

	// 0.004 native units sits above the cluster epsilon but below the
	// near-empty threshold: the trade is accepted and flagged at debug.
	n := buyNotification(addr(1), addr(2), 1)
	ok, reason := f.Assess(context.Background(), n, big.NewInt(4_000_000_000_000_000))
	require.True(t, ok, "reason: %s", reason)
	assert.Contains(t, buf.String(), "near-empty wallet")
	assert.Contains(t, buf.String(), addr(2).Hex())

	// A comfortably funded wallet is not flagged.
	buf.Reset()
	n = buyNotification(addr(3), addr(4), 1)
	ok, reason = f.Assess(context.Background(), n, big.NewInt(20_000_000_000_000_000))
	require.True(t, ok, "reason: %s", reason)
	assert.NotContains(t, buf.String(), "near-empty wallet")
}

type fakeBlacklist struct {
	members map[common.Address]bool
}

func (s *fakeBlacklist) Contains(_ context.Context, subject common.Address) (bool, error) {
	return s.members[subject], nil
}

func (s *fakeBlacklist) Add(_ context.Context, subject common.Address) error {
	s.members[subject] = true
	return nil
}

func TestAssess_RejectsSharedBlacklist(t *testing.T) {
	shared := &fakeBlacklist{members: map[common.Address]bool{addr(9): true}}
	f := NewFilter(testParams(), shared, testLogger())

	n := buyNotification(addr(1), addr(9), 1)

	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.False(t, ok)
	assert.Equal(t, ReasonBlacklisted, reason)
}

func TestDeny_WritesLocalAndShared(t *testing.T) {
	shared := &fakeBlacklist{members: map[common.Address]bool{}}
	f := NewFilter(testParams(), shared, testLogger())

	require.NoError(t, f.Deny(context.Background(), addr(7)))
	assert.True(t, shared.members[addr(7)])

	n := buyNotification(addr(1), addr(7), 1)
	ok, reason := f.Assess(context.Background(), n, big.NewInt(1_000_000))
	assert.False(t, ok)
	assert.Equal(t, ReasonBlacklisted, reason)
}
