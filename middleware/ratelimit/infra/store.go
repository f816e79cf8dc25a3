package infra

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"iam-gateway/middleware/ratelimit/domain"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxKeys limita quantos buckets ficam em memória quando WithMaxKeys não é usado.
const DefaultMaxKeys = 100_000

// Store é uma implementação de infra baseada em token-bucket (x/time/rate)
// com cache LRU por (política, chave) e limpeza periódica de chaves ociosas.
//
// O cache só serializa a busca do bucket; a contabilidade de tokens fica no
// mutex de cada rate.Limiter, então chaves diferentes não disputam o mesmo lock.
type Store struct {
	cache        *lru.Cache[string, *storeEntry]
	idleTTL      time.Duration
	cleanupEvery time.Duration
	maxKeys      int
	now          func() time.Time
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithMaxKeys limita o número de buckets; acima disso o menos usado é descartado.
func WithMaxKeys(n int) StoreOption {
	return func(s *Store) { s.maxKeys = n }
}

// WithClock troca o relógio (testes usam relógio virtual).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		maxKeys:      DefaultMaxKeys,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxKeys <= 0 {
		s.maxKeys = DefaultMaxKeys
	}
	// lru.New só falha com tamanho <= 0, já tratado acima.
	s.cache, _ = lru.New[string, *storeEntry](s.maxKeys)
	return s
}

func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Len devolve quantos buckets estão em memória.
func (s *Store) Len() int { return s.cache.Len() }

// TryAcquire implementa domain.LimiterStore.
func (s *Store) TryAcquire(_ context.Context, key domain.Key, policy domain.Policy) (domain.Decision, error) {
	now := s.now()
	lim := s.limiter(policy, string(key), now)
	n := policy.Tokens()

	if lim.AllowN(now, n) {
		return domain.Decision{Allowed: true, Remaining: math.Max(lim.TokensAt(now), 0)}, nil
	}

	available := math.Max(lim.TokensAt(now), 0)
	return domain.Decision{
		Allowed:    false,
		RetryAfter: retryAfter(float64(n)-available, policy.ReplenishRate),
		Remaining:  available,
	}, nil
}

func (s *Store) limiter(policy domain.Policy, key string, now time.Time) *rate.Limiter {
	id := policy.Name + "|" + key

	ent, ok := s.cache.Get(id)
	if !ok {
		candidate := &storeEntry{lim: rate.NewLimiter(rate.Limit(policy.ReplenishRate), policy.BurstCapacity)}
		prev, found, _ := s.cache.PeekOrAdd(id, candidate)
		if found {
			ent = prev
		} else {
			ent = candidate
		}
	}
	ent.lastSeen.Store(now.UnixNano())
	return ent.lim
}

// retryAfter = ceil(faltam / reposição) segundos, nunca menos que 1s.
func retryAfter(missing, replenishRate float64) time.Duration {
	if replenishRate <= 0 {
		return time.Second
	}
	secs := math.Ceil(missing / replenishRate)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL).UnixNano()

	for _, k := range s.cache.Keys() {
		ent, ok := s.cache.Peek(k)
		if ok && ent.lastSeen.Load() < cutoff {
			s.cache.Remove(k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem exigir o contrato todo.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
