// Package chain wraps the RPC connections to Base and the shares contract
// binding built on them.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client holds the two RPC connections the sniper needs: an HTTP endpoint for
// calls and transaction submission, and a WebSocket endpoint for log
// subscriptions.
type Client struct {
	http *ethclient.Client
	ws   *ethclient.Client
}

// Dial connects to both endpoints. The HTTP connection is verified by fetching
// the chain ID and comparing it against wantChainID.
func Dial(ctx context.Context, rpcURL, wsURL string, wantChainID int64) (*Client, error) {
	httpClient, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing rpc endpoint: %w", err)
	}

	id, err := httpClient.ChainID(ctx)
	if err != nil {
		httpClient.Close()
		return nil, fmt.Errorf("chain: fetching chain id: %w", err)
	}
	if id.Int64() != wantChainID {
		httpClient.Close()
		return nil, fmt.Errorf("chain: endpoint reports chain id %d, want %d", id.Int64(), wantChainID)
	}

	wsClient, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		httpClient.Close()
		return nil, fmt.Errorf("chain: dialing ws endpoint: %w", err)
	}

	return &Client{http: httpClient, ws: wsClient}, nil
}

// Close releases both connections.
func (c *Client) Close() {
	c.http.Close()
	c.ws.Close()
}

// BalanceAt returns the current native balance of addr.
func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.http.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: fetching balance: %w", err)
	}
	return bal, nil
}

// PendingNonceAt returns the next nonce for addr including pending txs.
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	n, err := c.http.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("chain: fetching pending nonce: %w", err)
	}
	return n, nil
}

// SuggestGasPrice returns the node's current gas price estimate.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	p, err := c.http.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggesting gas price: %w", err)
	}
	return p, nil
}

// SendTransaction submits a signed transaction over the HTTP endpoint.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.http.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chain: sending transaction: %w", err)
	}
	return nil
}

// TransactionReceipt fetches the receipt for hash, or ethereum.NotFound while
// the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.http.TransactionReceipt(ctx, hash)
}

// CallContract executes a read-only call over the HTTP endpoint.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.http.CallContract(ctx, msg, nil)
}

// SubscribeFilterLogs opens a log subscription over the WebSocket endpoint.
func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.ws.SubscribeFilterLogs(ctx, q, ch)
}
