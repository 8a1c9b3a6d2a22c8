// Package domain defines the core types shared across the sniper: trade
// notifications decoded from the shares contract, open positions, gas quotes,
// and the interfaces implemented by the storage and cache layers.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TradeNotification is one decoded Trade event from the shares contract.
// All big.Int fields are owned by the notification and never mutated after
// decoding.
type TradeNotification struct {
	Trader      common.Address
	Subject     common.Address
	IsBuy       bool
	ShareAmount *big.Int
	EthAmount   *big.Int
	ProtocolFee *big.Int
	SubjectFee  *big.Int
	SupplyAfter *big.Int

	BlockNumber uint64
	TxHash      common.Hash
}

// SelfTrade reports whether the trader bought their own shares.
func (n TradeNotification) SelfTrade() bool {
	return n.Trader == n.Subject
}
