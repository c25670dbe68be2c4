package lockstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pawpad:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker uses SET NX PX so replicas sharing a redis never hold the same
// key at once.
type RedisLocker struct {
	Client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLocker(opt *redis.Options) *RedisLocker {
	return &RedisLocker{Client: redis.NewClient(opt), tokens: map[string]string{}}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, keyPrefix+key, token, ttlOrDefault(ttl)).Result()
	if err != nil {
		return false, err
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

func (r *RedisLocker) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, r.Client, []string{keyPrefix + key}, token).Err()
}

func (r *RedisLocker) Close() error {
	return r.Client.Close()
}
