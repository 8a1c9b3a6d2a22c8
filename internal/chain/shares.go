package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// sharesABIJSON covers the subset of the shares contract the sniper uses:
// price quotes, balance and supply reads, the two trade methods, and the
// Trade event. All Trade fields are unindexed, so every value lives in the
// log data.
const sharesABIJSON = `[
  {"type":"function","name":"getBuyPriceAfterFee","stateMutability":"view","inputs":[{"name":"sharesSubject","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getSellPriceAfterFee","stateMutability":"view","inputs":[{"name":"sharesSubject","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"sharesBalance","stateMutability":"view","inputs":[{"name":"sharesSubject","type":"address"},{"name":"holder","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"sharesSupply","stateMutability":"view","inputs":[{"name":"sharesSubject","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"buyShares","stateMutability":"payable","inputs":[{"name":"sharesSubject","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"sellShares","stateMutability":"nonpayable","inputs":[{"name":"sharesSubject","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"Trade","anonymous":false,"inputs":[
    {"name":"trader","type":"address","indexed":false},
    {"name":"subject","type":"address","indexed":false},
    {"name":"isBuy","type":"bool","indexed":false},
    {"name":"shareAmount","type":"uint256","indexed":false},
    {"name":"ethAmount","type":"uint256","indexed":false},
    {"name":"protocolEthAmount","type":"uint256","indexed":false},
    {"name":"subjectEthAmount","type":"uint256","indexed":false},
    {"name":"supply","type":"uint256","indexed":false}
  ]}
]`

// SharesContract binds the shares trading contract: read-only quote and
// balance calls, unsigned transaction construction, and Trade event decoding.
type SharesContract struct {
	client   *Client
	address  common.Address
	abi      abi.ABI
	tradeSig common.Hash
}

// NewSharesContract parses the embedded ABI and binds it to the contract at
// address.
func NewSharesContract(client *Client, address common.Address) (*SharesContract, error) {
	parsed, err := abi.JSON(strings.NewReader(sharesABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing shares ABI: %w", err)
	}
	return &SharesContract{
		client:   client,
		address:  address,
		abi:      parsed,
		tradeSig: parsed.Events["Trade"].ID,
	}, nil
}

// Address returns the bound contract address.
func (s *SharesContract) Address() common.Address {
	return s.address
}

// TradeTopic returns the Trade event signature hash, for log filtering.
func (s *SharesContract) TradeTopic() common.Hash {
	return s.tradeSig
}

// GetBuyPriceAfterFee quotes the total cost, fees included, of buying amount
// shares of subject. A zero result means the order book would reject the buy.
func (s *SharesContract) GetBuyPriceAfterFee(ctx context.Context, subject common.Address, amount *big.Int) (*big.Int, error) {
	return s.callUint256(ctx, "getBuyPriceAfterFee", subject, amount)
}

// GetSellPriceAfterFee quotes the proceeds, fees deducted, of selling amount
// shares of subject.
func (s *SharesContract) GetSellPriceAfterFee(ctx context.Context, subject common.Address, amount *big.Int) (*big.Int, error) {
	return s.callUint256(ctx, "getSellPriceAfterFee", subject, amount)
}

// SharesBalance returns how many shares of subject the holder owns.
func (s *SharesContract) SharesBalance(ctx context.Context, subject, holder common.Address) (*big.Int, error) {
	return s.callUint256(ctx, "sharesBalance", subject, holder)
}

// SharesSupply returns the current share supply for subject.
func (s *SharesContract) SharesSupply(ctx context.Context, subject common.Address) (*big.Int, error) {
	return s.callUint256(ctx, "sharesSupply", subject)
}

// BuyTx builds an unsigned buyShares transaction carrying value wei.
func (s *SharesContract) BuyTx(nonce uint64, gasPrice *big.Int, gasLimit uint64, value *big.Int, subject common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := s.abi.Pack("buyShares", subject, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: packing buyShares: %w", err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.address,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

// SellTx builds an unsigned sellShares transaction.
func (s *SharesContract) SellTx(nonce uint64, gasPrice *big.Int, gasLimit uint64, subject common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := s.abi.Pack("sellShares", subject, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: packing sellShares: %w", err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.address,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

// DecodeTrade unpacks a Trade event log into a domain notification. Logs that
// do not carry the Trade signature or whose data does not unpack cleanly
// return domain.ErrMalformedEvent.
func (s *SharesContract) DecodeTrade(log types.Log) (domain.TradeNotification, error) {
	if len(log.Topics) == 0 || log.Topics[0] != s.tradeSig {
		return domain.TradeNotification{}, fmt.Errorf("chain: unexpected event signature: %w", domain.ErrMalformedEvent)
	}

	values, err := s.abi.Unpack("Trade", log.Data)
	if err != nil {
		return domain.TradeNotification{}, fmt.Errorf("chain: unpacking trade data: %v: %w", err, domain.ErrMalformedEvent)
	}
	if len(values) != 8 {
		return domain.TradeNotification{}, fmt.Errorf("chain: trade has %d fields, want 8: %w", len(values), domain.ErrMalformedEvent)
	}

	trader, ok1 := values[0].(common.Address)
	subject, ok2 := values[1].(common.Address)
	isBuy, ok3 := values[2].(bool)
	shareAmount, ok4 := values[3].(*big.Int)
	ethAmount, ok5 := values[4].(*big.Int)
	protocolFee, ok6 := values[5].(*big.Int)
	subjectFee, ok7 := values[6].(*big.Int)
	supply, ok8 := values[7].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return domain.TradeNotification{}, fmt.Errorf("chain: trade field types: %w", domain.ErrMalformedEvent)
	}

	return domain.TradeNotification{
		Trader:      trader,
		Subject:     subject,
		IsBuy:       isBuy,
		ShareAmount: shareAmount,
		EthAmount:   ethAmount,
		ProtocolFee: protocolFee,
		SubjectFee:  subjectFee,
		SupplyAfter: supply,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// callUint256 executes a view method returning a single uint256.
func (s *SharesContract) callUint256(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := s.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: packing %s: %w", method, err)
	}

	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("chain: calling %s: %w", method, err)
	}

	values, err := s.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpacking %s result: %w", method, err)
	}
	result, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s returned unexpected type %T", method, values[0])
	}
	return result, nil
}
