package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "reservation:expiry"

// ExpiryIndex keeps one sorted-set entry per ACTIVE reservation, scored by
// expiry as epoch seconds, so due holds come back soonest-expiring first.
type ExpiryIndex struct {
	rdb *redis.Client
	key string
}

func NewExpiryIndex(rdb *redis.Client, key string) *ExpiryIndex {
	if key == "" {
		key = DefaultKey
	}
	return &ExpiryIndex{rdb: rdb, key: key}
}

func (x *ExpiryIndex) Add(ctx context.Context, reservationID int64, expiresAt time.Time) error {
	return x.rdb.ZAdd(ctx, x.key, redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: strconv.FormatInt(reservationID, 10),
	}).Err()
}

func (x *ExpiryIndex) Remove(ctx context.Context, member string) error {
	return x.rdb.ZRem(ctx, x.key, member).Err()
}

func (x *ExpiryIndex) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	return x.rdb.ZRangeByScore(ctx, x.key, &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
}
