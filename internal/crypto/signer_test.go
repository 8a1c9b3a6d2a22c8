package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSigner_DerivesAddress(t *testing.T) {
	s, err := NewSigner(testKeyHex, 8453)
	require.NoError(t, err)

	// Address for the 0x4646...46 key from the chain replay protection
	// examples.
	assert.Equal(t, common.HexToAddress("0x9d8A62f656a8d1615C1294fd71e9CFb3E4855A4F"), s.Address())
	assert.Equal(t, int64(8453), s.ChainID().Int64())
}

func TestNewSigner_RejectsBadKey(t *testing.T) {
	_, err := NewSigner("zzzz", 8453)
	assert.Error(t, err)
}

func TestSignTx(t *testing.T) {
	s, err := NewSigner("0x"+testKeyHex, 8453)
	require.NoError(t, err)

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		To:       &to,
		Value:    big.NewInt(1000),
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	})

	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}
