package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"iam-gateway/middleware/ratelimit/application"
	"iam-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Chaves literais usadas quando não dá para identificar o cliente.
const (
	AnonymousKey = "anonymous"
	UnknownKey   = "unknown"
)

type KeyFunc func(r *http.Request) string

// KeyStrategy define como a chave do bucket é escolhida para uma rota.
type KeyStrategy string

const (
	// KeyByUser usa a identidade autenticada (ou "anonymous").
	KeyByUser KeyStrategy = "user"
	// KeyByIP usa o IP do cliente (ou "unknown").
	KeyByIP KeyStrategy = "ip"
)

type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	Policies            map[string]domain.Policy
	TrustXForwardedFor  bool
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Logger              *zap.Logger
}

// Limiter é o adapter HTTP do rate limit: resolve a chave, consulta a camada
// application e traduz a decisão para headers.
type Limiter struct {
	svc        application.Service
	stats      domain.StatsStore
	policies   map[string]domain.Policy
	clientIP   KeyFunc
	addHeaders bool
	logger     *zap.Logger
}

// Check descreve uma verificação de rate limit de uma requisição já roteada.
type Check struct {
	Policy   string
	Strategy KeyStrategy
	Identity string
	Route    string
}

func ClientIPKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return UnknownKey
	}
}

func New(opts Options) *Limiter {
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Limiter{
		svc: application.Service{
			Store:      opts.Store,
			RetryAfter: opts.RetryAfter,
		},
		stats:      opts.Stats,
		policies:   opts.Policies,
		clientIP:   ClientIPKeyFunc(opts.TrustXForwardedFor),
		addHeaders: opts.AddRateLimitHeaders,
		logger:     opts.Logger,
	}
}

// Policy devolve a política registrada com o nome.
func (l *Limiter) Policy(name string) (domain.Policy, bool) {
	p, ok := l.policies[name]
	return p, ok
}

// Key resolve a chave do bucket segundo a estratégia da rota.
func (l *Limiter) Key(r *http.Request, strategy KeyStrategy, identity string) domain.Key {
	if strategy == KeyByUser {
		if identity = strings.TrimSpace(identity); identity != "" {
			return domain.Key(identity)
		}
		return AnonymousKey
	}
	return domain.Key(l.clientIP(r))
}

// Allow aplica a política da rota. Rotas sem política (ou com política
// desconhecida) são sempre admitidas.
func (l *Limiter) Allow(w http.ResponseWriter, r *http.Request, c Check) domain.Decision {
	policy, ok := l.policies[c.Policy]
	if !ok {
		return domain.Decision{Allowed: true}
	}
	key := l.Key(r, c.Strategy, c.Identity)

	dec, err := l.svc.Decide(r.Context(), key, policy)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, admitting request",
			zap.String("policy", policy.Name), zap.String("route", c.Route), zap.Error(err))
	}

	if l.addHeaders {
		h := w.Header()
		h.Set("X-RateLimit-Key", string(key))
		h.Set("X-RateLimit-Replenish-Rate", strconv.FormatFloat(policy.ReplenishRate, 'f', -1, 64))
		h.Set("X-RateLimit-Burst-Capacity", strconv.Itoa(policy.BurstCapacity))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(int(dec.Remaining)))
	}

	if l.stats != nil {
		ev := domain.StatsEvent{
			Key:     key,
			Policy:  policy.Name,
			Allowed: dec.Allowed,
			Method:  r.Method,
			Route:   c.Route,
			At:      time.Now(),
		}
		// best-effort: erro de estatística não derruba a requisição.
		if err := l.stats.Record(r.Context(), ev); err != nil {
			l.logger.Debug("rate limit stats record failed", zap.Error(err))
		}
	}

	return dec
}
