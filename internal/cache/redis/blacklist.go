package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// blacklistKey is the Redis set holding excluded subject addresses. Addresses
// are stored lowercased so membership checks are case-insensitive.
const blacklistKey = "sharesniper:blacklist"

// Blacklist implements domain.BlacklistStore on a Redis set, letting multiple
// agents share one exclusion list.
type Blacklist struct {
	rdb *redis.Client
}

// NewBlacklist creates a Blacklist on the given client.
func NewBlacklist(client *Client) *Blacklist {
	return &Blacklist{rdb: client.Underlying()}
}

var _ domain.BlacklistStore = (*Blacklist)(nil)

// Contains reports whether subject is in the shared blacklist.
func (b *Blacklist) Contains(ctx context.Context, subject common.Address) (bool, error) {
	hit, err := b.rdb.SIsMember(ctx, blacklistKey, member(subject)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: blacklist lookup: %w", err)
	}
	return hit, nil
}

// Add inserts subject into the shared blacklist.
func (b *Blacklist) Add(ctx context.Context, subject common.Address) error {
	if err := b.rdb.SAdd(ctx, blacklistKey, member(subject)).Err(); err != nil {
		return fmt.Errorf("redis: blacklist add: %w", err)
	}
	return nil
}

func member(subject common.Address) string {
	return strings.ToLower(subject.Hex())
}
