package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// Classify maps a submission or RPC error onto a domain.TxErrorKind. JSON-RPC
// error codes are preferred when the transport surfaces them; otherwise the
// provider message is matched by substring, since public Base endpoints are
// inconsistent about codes.
func Classify(err error) domain.TxErrorKind {
	if err == nil {
		return domain.TxErrUnknown
	}

	if rpcErr, ok := err.(rpc.Error); ok {
		switch rpcErr.ErrorCode() {
		case -32005, 429:
			return domain.TxErrRateLimited
		case 3:
			return domain.TxErrReverted
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many request"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "limit exceeded"):
		return domain.TxErrRateLimited
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "already known"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return domain.TxErrNonceConflict
	case strings.Contains(msg, "insufficient payment"):
		return domain.TxErrInsufficientPayment
	case strings.Contains(msg, "execution reverted"):
		return domain.TxErrReverted
	default:
		return domain.TxErrUnknown
	}
}
