// Package heuristic screens decoded trades for the patterns that make a
// subject worth acquiring: organic first buys, not bot wallets or bulk
// accumulation.
package heuristic

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// Reject reasons returned by Assess.
const (
	ReasonNotBuy         = "not_buy"
	ReasonBulkBuy        = "bulk_buy"
	ReasonBlacklisted    = "blacklisted"
	ReasonBalanceCluster = "balance_cluster"
	ReasonFundingBand    = "funding_band"
)

// Params tunes the filter. All wei values fit in int64.
type Params struct {
	// BalanceEpsilonWei is the closeness threshold for the balance cluster
	// rule: a holder balance within this distance of a recently seen balance
	// marks a batch-funded wallet.
	BalanceEpsilonWei int64
	// LowBalanceWei marks a near-empty subject wallet. Trades below it are
	// still accepted but logged for inspection.
	LowBalanceWei int64
	// BotBandLowWei and BotBandHighWei bound the funding band automated
	// wallets are typically topped up to.
	BotBandLowWei  int64
	BotBandHighWei int64
	// RecentBalances caps how many observed balances the cluster rule keeps.
	RecentBalances int
	// MaxSelfTradeShares is the largest share count accepted when the trader
	// is buying their own shares.
	MaxSelfTradeShares int64
	// Blacklist is the static list of subject addresses never acquired.
	Blacklist []string
}

// Filter applies the bot heuristics in a fixed order, short-circuiting on the
// first match. The recent-balance window is bounded and safe for concurrent
// assessment.
type Filter struct {
	params Params
	logger *slog.Logger

	denied map[common.Address]struct{}
	shared domain.BlacklistStore // optional, may be nil

	mu       sync.Mutex
	balances []*big.Int
}

// NewFilter builds a Filter. shared may be nil when no cross-agent blacklist
// backend is configured.
func NewFilter(params Params, shared domain.BlacklistStore, logger *slog.Logger) *Filter {
	denied := make(map[common.Address]struct{}, len(params.Blacklist))
	for _, a := range params.Blacklist {
		denied[common.HexToAddress(a)] = struct{}{}
	}
	return &Filter{
		params: params,
		logger: logger.With(slog.String("component", "heuristic")),
		denied: denied,
		shared: shared,
	}
}

// Assess decides whether the trade is worth acting on. holderBalance is the
// current native balance of the traded subject's wallet. It returns false
// plus a reject reason, or true with an empty reason.
func (f *Filter) Assess(ctx context.Context, n domain.TradeNotification, holderBalance *big.Int) (bool, string) {
	if !n.IsBuy {
		return false, ReasonNotBuy
	}

	// Multi-share buys signal accumulation rather than a fresh subject,
	// except when a subject seeds their own book with a few shares.
	if n.ShareAmount.Cmp(big.NewInt(1)) > 0 {
		if !n.SelfTrade() || n.ShareAmount.Cmp(big.NewInt(f.params.MaxSelfTradeShares)) > 0 {
			return false, ReasonBulkBuy
		}
	}

	if f.nearRecentBalance(holderBalance) {
		return false, ReasonBalanceCluster
	}
	if f.inFundingBand(holderBalance) {
		return false, ReasonFundingBand
	}

	if f.blacklisted(ctx, n.Subject) {
		return false, ReasonBlacklisted
	}

	if holderBalance.Cmp(big.NewInt(f.params.LowBalanceWei)) < 0 {
		f.logger.Debug("accepting subject with near-empty wallet",
			slog.String("subject", n.Subject.Hex()),
			slog.String("balance_wei", holderBalance.String()))
	}

	// Only accepted trades feed the cluster window; rejected wallets would
	// poison it.
	f.remember(holderBalance)

	return true, ""
}

// Deny adds subject to the local blacklist and, when configured, the shared
// backend.
func (f *Filter) Deny(ctx context.Context, subject common.Address) error {
	f.mu.Lock()
	f.denied[subject] = struct{}{}
	f.mu.Unlock()

	if f.shared != nil {
		return f.shared.Add(ctx, subject)
	}
	return nil
}

func (f *Filter) blacklisted(ctx context.Context, subject common.Address) bool {
	f.mu.Lock()
	_, local := f.denied[subject]
	f.mu.Unlock()
	if local {
		return true
	}

	if f.shared != nil {
		hit, err := f.shared.Contains(ctx, subject)
		if err != nil {
			f.logger.Warn("shared blacklist lookup failed",
				slog.String("error", err.Error()))
			return false
		}
		return hit
	}
	return false
}

// nearRecentBalance reports whether balance sits within epsilon of any
// balance seen in the recent window.
func (f *Filter) nearRecentBalance(balance *big.Int) bool {
	eps := big.NewInt(f.params.BalanceEpsilonWei)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seen := range f.balances {
		diff := new(big.Int).Sub(balance, seen)
		if diff.Abs(diff).Cmp(eps) <= 0 {
			return true
		}
	}
	return false
}

// remember appends balance to the window, evicting the oldest entry when full.
func (f *Filter) remember(balance *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = append(f.balances, new(big.Int).Set(balance))
	if len(f.balances) > f.params.RecentBalances {
		f.balances = f.balances[1:]
	}
}

func (f *Filter) inFundingBand(balance *big.Int) bool {
	low := big.NewInt(f.params.BotBandLowWei)
	high := big.NewInt(f.params.BotBandHighWei)
	return balance.Cmp(low) >= 0 && balance.Cmp(high) <= 0
}
