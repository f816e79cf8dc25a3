package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"iam-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript faz refill + consumo num único passo atômico no Redis.
//
// KEYS[1] = tokens, KEYS[2] = timestamp do último refill (ms)
// ARGV    = reposição/s, capacidade, agora (ms), tokens pedidos
// Retorno = {permitido (0|1), tokens restantes (string), retry-after (ms)}
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local timestamp_key = KEYS[2]

local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local ttl = math.floor((capacity / rate) * 2 * 1000)
if ttl < 1000 then
  ttl = 1000
end

local last_tokens = tonumber(redis.call("GET", tokens_key))
if last_tokens == nil then
  last_tokens = capacity
end

local last_refreshed = tonumber(redis.call("GET", timestamp_key))
if last_refreshed == nil then
  last_refreshed = 0
end

local delta = math.max(0, now - last_refreshed)
local filled = math.min(capacity, last_tokens + (delta / 1000) * rate)

local allowed = 0
local retry_ms = 0
local new_tokens = filled
if filled >= requested then
  allowed = 1
  new_tokens = filled - requested
else
  retry_ms = math.ceil((requested - filled) / rate) * 1000
end

redis.call("SET", tokens_key, tostring(new_tokens), "PX", ttl)
redis.call("SET", timestamp_key, tostring(now), "PX", ttl)

return { allowed, tostring(new_tokens), retry_ms }
`)

// RedisStore é o token bucket compartilhado entre instâncias do gateway.
//
// O estado (tokens + timestamp) vive no Redis e é atualizado por script Lua,
// então duas instâncias nunca gastam o mesmo token.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type RedisStoreOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "gateway:rate-limit",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryAcquire implementa domain.LimiterStore.
func (s *RedisStore) TryAcquire(ctx context.Context, key domain.Key, policy domain.Policy) (domain.Decision, error) {
	if policy.ReplenishRate <= 0 || policy.BurstCapacity <= 0 {
		return domain.Decision{}, fmt.Errorf("invalid policy %q: rate and capacity must be > 0", policy.Name)
	}

	// hashtag {...} mantém as duas chaves no mesmo slot em Redis Cluster.
	base := fmt.Sprintf("%s:{%s:%s}", s.prefix, policy.Name, key)
	keys := []string{base + ".tokens", base + ".timestamp"}

	res, err := tokenBucketScript.Run(ctx, s.rdb, keys,
		strconv.FormatFloat(policy.ReplenishRate, 'f', -1, 64),
		policy.BurstCapacity,
		s.now().UnixMilli(),
		policy.Tokens(),
	).Slice()
	if err != nil {
		return domain.Decision{}, err
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("unexpected script reply: %v", res)
	}

	allowed, _ := res[0].(int64)
	remaining, _ := strconv.ParseFloat(fmt.Sprint(res[1]), 64)
	retryMs, _ := res[2].(int64)

	return domain.Decision{
		Allowed:    allowed == 1,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
		Remaining:  remaining,
	}, nil
}
