package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

type fakeSub struct {
	errs chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errs }

type fakeSource struct {
	mu       sync.Mutex
	failures int
	calls    int
	logs     chan types.Log
	sub      *fakeSub
}

func (s *fakeSource) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("connection refused")
	}
	s.sub = &fakeSub{errs: make(chan error, 1)}
	go func() {
		for l := range s.logs {
			ch <- l
		}
	}()
	return s.sub, nil
}

func (s *fakeSource) subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeDecoder struct {
	topic common.Hash
}

func (d *fakeDecoder) Address() common.Address {
	return common.HexToAddress("0xCF205808Ed36593aa40a44F10c7f7C2F67d4A4d4")
}

func (d *fakeDecoder) TradeTopic() common.Hash { return d.topic }

func (d *fakeDecoder) DecodeTrade(log types.Log) (domain.TradeNotification, error) {
	if len(log.Topics) == 0 || log.Topics[0] != d.topic {
		return domain.TradeNotification{}, domain.ErrMalformedEvent
	}
	return domain.TradeNotification{
		Subject:     common.BytesToAddress(log.Data),
		IsBuy:       true,
		ShareAmount: big.NewInt(1),
		BlockNumber: log.BlockNumber,
	}, nil
}

func testFeed(source LogSource, decoder Decoder) *TradeFeed {
	return NewTradeFeed(source, decoder, Params{
		SubscribeAttempts: 3,
		SubscribeBackoff:  time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun_ForwardsDecodedTrades(t *testing.T) {
	topic := common.HexToHash("0x01")
	source := &fakeSource{logs: make(chan types.Log, 4)}
	f := testFeed(source, &fakeDecoder{topic: topic})

	subject := common.HexToAddress("0x2222222222222222222222222222222222222222")
	source.logs <- types.Log{Topics: []common.Hash{topic}, Data: subject.Bytes(), BlockNumber: 9}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case n := <-f.Notifications():
		assert.Equal(t, subject, n.Subject)
		assert.Equal(t, uint64(9), n.BlockNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestRun_SkipsMalformedLogs(t *testing.T) {
	topic := common.HexToHash("0x01")
	source := &fakeSource{logs: make(chan types.Log, 4)}
	f := testFeed(source, &fakeDecoder{topic: topic})

	subject := common.HexToAddress("0x2222222222222222222222222222222222222222")
	source.logs <- types.Log{Topics: []common.Hash{common.HexToHash("0xbad")}}
	source.logs <- types.Log{Topics: []common.Hash{topic}, Data: subject.Bytes()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	select {
	case n := <-f.Notifications():
		assert.Equal(t, subject, n.Subject, "the malformed log is dropped, not fatal")
	case <-time.After(5 * time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestRun_RetriesSubscription(t *testing.T) {
	topic := common.HexToHash("0x01")
	source := &fakeSource{failures: 2, logs: make(chan types.Log)}
	f := testFeed(source, &fakeDecoder{topic: topic})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, source.subscribed, 5*time.Second, time.Millisecond)
	assert.Equal(t, 3, source.callCount())

	cancel()
	<-done
}

func TestRun_SubscribeExhausted(t *testing.T) {
	source := &fakeSource{failures: 10}
	f := testFeed(source, &fakeDecoder{topic: common.HexToHash("0x01")})

	err := f.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrSubExhausted)

	// The stream closes when Run gives up.
	_, open := <-f.Notifications()
	assert.False(t, open)
}
