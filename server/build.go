package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"iam-gateway/config"
	"iam-gateway/gateway"
	"iam-gateway/health"
	"iam-gateway/middleware/auth"
	"iam-gateway/middleware/circuitbreaker"
	"iam-gateway/middleware/ratelimit"
	"iam-gateway/middleware/ratelimit/domain"
	"iam-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// App é o gateway montado a partir da configuração.
type App struct {
	Server   *Server
	Routes   *gateway.RouteTable
	Health   *health.Aggregator
	Breakers *circuitbreaker.Registry

	buckets *infra.Store
}

// Build monta todas as peças. rdb pode ser nil quando redis.enabled=false.
func Build(cfg *config.Config, logger *zap.Logger, rdb *redis.Client) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Redis.Enabled && rdb == nil {
		return nil, errors.New("redis is enabled but no client was provided")
	}

	routes, err := cfg.GatewayRoutes()
	if err != nil {
		return nil, err
	}
	table, err := gateway.NewRouteTable(routes)
	if err != nil {
		return nil, err
	}

	app := &App{Routes: table}

	gate, err := buildGate(cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter, stats, err := app.buildLimiter(cfg, logger, rdb)
	if err != nil {
		return nil, err
	}

	if cfg.CircuitBreaker.Enabled {
		app.Breakers = circuitbreaker.NewRegistry(config.BreakerNames(routes), circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			Window:           cfg.CircuitBreaker.Window,
			Cooldown:         cfg.CircuitBreaker.Cooldown,
			TrialTimeout:     cfg.CircuitBreaker.TrialTimeout,
		}, logger.Named("circuitbreaker"))
	}

	dispatcher, err := gateway.NewProxyDispatcher(routes, gateway.ProxyOptions{
		ConnectTimeout:      cfg.Proxy.ConnectTimeout,
		ResponseTimeout:     cfg.Proxy.ResponseTimeout,
		IdleConnTimeout:     cfg.Proxy.IdleConnTimeout,
		MaxIdleConnsPerHost: cfg.Proxy.MaxIdleConnsPerHost,
		Logger:              logger.Named("proxy"),
	})
	if err != nil {
		return nil, err
	}

	fallback := gateway.NewFallbackResponder(cfg.Fallback.RetryAfterSeconds, cfg.ServiceURLs())

	pipeline, err := gateway.NewPipeline(gateway.Options{
		Routes:     table,
		Gate:       gate,
		Limiter:    limiter,
		Breakers:   app.Breakers,
		Dispatcher: dispatcher,
		Fallback:   fallback,
		Logger:     logger.Named("pipeline"),
	})
	if err != nil {
		return nil, err
	}

	app.Health = health.NewAggregator(buildProbes(cfg, rdb),
		health.WithProbeTimeout(cfg.Health.ProbeTimeout),
		health.WithQuorum(cfg.Health.Quorum),
		health.WithLogger(logger.Named("health")),
	)

	var inFlight *infra.ChanPool
	if cfg.Server.MaxInFlight > 0 {
		inFlight = infra.NewChanPool(cfg.Server.MaxInFlight)
	}

	app.Server = New(Deps{
		Config:   cfg,
		Pipeline: pipeline,
		Routes:   table,
		Health:   app.Health,
		Breakers: app.Breakers,
		Fallback: fallback,
		Stats:    stats,
		InFlight: inFlight,
		Logger:   logger,
	})
	return app, nil
}

// StartBackground inicia o janitor dos buckets em memória; para com ctx.
func (a *App) StartBackground(ctx context.Context) {
	if a.buckets != nil {
		a.buckets.StartJanitor(ctx)
	}
}

func buildGate(cfg *config.Config, logger *zap.Logger) (*auth.Gate, error) {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, nil
	}
	v, err := auth.NewHMACValidator([]byte(cfg.JWT.Secret),
		auth.WithMethods(cfg.JWT.Algorithms...),
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithLeeway(cfg.JWT.Leeway),
	)
	if err != nil {
		return nil, err
	}
	return auth.NewGate(v, auth.WithLogger(logger.Named("auth")))
}

func (a *App) buildLimiter(cfg *config.Config, logger *zap.Logger, rdb *redis.Client) (*ratelimit.Limiter, StatsReader, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil, nil
	}

	var store domain.LimiterStore
	switch cfg.RateLimit.Backend {
	case "redis":
		store = infra.NewRedisStore(rdb, infra.WithRedisPrefix(cfg.Redis.KeyPrefix+":rate-limit"))
	case "memory", "":
		a.buckets = infra.NewStore(
			infra.WithIdleTTL(cfg.RateLimit.IdleTTL),
			infra.WithMaxKeys(cfg.RateLimit.MaxKeys),
		)
		store = a.buckets
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}

	var (
		stats  domain.StatsStore
		reader StatsReader
	)
	switch cfg.Stats.Backend {
	case "memory":
		m := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
		stats, reader = m, m
	case "redis":
		r := infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		stats, reader = r, r
	}

	limiter := ratelimit.New(ratelimit.Options{
		Store:               store,
		Stats:               stats,
		Policies:            cfg.Policies(),
		TrustXForwardedFor:  cfg.RateLimit.TrustXForwardedFor,
		AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
		Logger:              logger.Named("ratelimit"),
	})
	return limiter, reader, nil
}

func buildProbes(cfg *config.Config, rdb *redis.Client) []health.Probe {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	services := []struct {
		name string
		svc  config.ServiceConfig
	}{
		{gateway.UserService, cfg.Services.User},
		{gateway.AuthService, cfg.Services.Auth},
		{gateway.OrganizationService, cfg.Services.Organization},
		{gateway.ChatService, cfg.Services.Chat},
	}

	probes := make([]health.Probe, 0, len(services)+1)
	for _, s := range services {
		if !s.svc.HealthImplemented {
			probes = append(probes, health.NotImplemented(s.name))
			continue
		}
		probes = append(probes, health.NewHTTPProbe(s.name, strings.TrimRight(s.svc.URL, "/")+s.svc.HealthPath, client))
	}
	if rdb != nil {
		probes = append(probes, health.NewRedisProbe(rdb, cfg.Redis.KeyPrefix+":health:check", cfg.Health.StoreTimeout))
	}
	return probes
}
