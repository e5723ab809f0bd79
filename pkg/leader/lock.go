package leader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when this instance still holds it,
// so an expired lease taken over by another instance is never released here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock is a time-bounded cross-instance mutex. The TTL bounds how long a
// crashed holder can block the fleet.
type Lock struct {
	rdb *redis.Client
	key string
	id  string
	ttl time.Duration
}

func New(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		rdb: rdb,
		key: key,
		id:  uuid.NewString(),
		ttl: ttl,
	}
}

func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.id, l.ttl).Result()
}

func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.id).Err()
}
