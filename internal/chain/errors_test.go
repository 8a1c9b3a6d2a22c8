package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.TxErrorKind
	}{
		{"nil", nil, domain.TxErrUnknown},
		{"rpc code -32005", codedError{-32005, "limit"}, domain.TxErrRateLimited},
		{"rpc code 429", codedError{429, "slow down"}, domain.TxErrRateLimited},
		{"rpc code 3", codedError{3, "execution failed"}, domain.TxErrReverted},
		{"too many requests", errors.New("429 Too Many Requests"), domain.TxErrRateLimited},
		{"rate limit text", errors.New("rate limit exceeded"), domain.TxErrRateLimited},
		{"limit exceeded", errors.New("daily request limit exceeded"), domain.TxErrRateLimited},
		{"nonce too low", errors.New("nonce too low"), domain.TxErrNonceConflict},
		{"already known", errors.New("already known"), domain.TxErrNonceConflict},
		{"replacement underpriced", errors.New("replacement transaction underpriced"), domain.TxErrNonceConflict},
		{"insufficient payment", errors.New("execution reverted: Insufficient payment"), domain.TxErrInsufficientPayment},
		{"generic revert", errors.New("execution reverted"), domain.TxErrReverted},
		{"wrapped", fmt.Errorf("send: %w", errors.New("Nonce too low")), domain.TxErrNonceConflict},
		{"unknown", errors.New("connection reset by peer"), domain.TxErrUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
