package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"iam-gateway/config"
	"iam-gateway/gateway"
	"iam-gateway/logging"
	"iam-gateway/server"
	"iam-gateway/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, gateway.DefaultVersion, logger)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = shutdownTracer(sctx)
		}()
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			// segue sem Redis: o limiter falha aberto e o health reporta DOWN.
			logger.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	app, err := server.Build(cfg, logger, rdb)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	app.StartBackground(ctx)

	logger.Info("gateway configured",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.Int("routes", len(app.Routes.Routes())),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.Float64("replenish_rate", cfg.RateLimit.ReplenishRate),
		zap.Int("burst_capacity", cfg.RateLimit.BurstCapacity),
		zap.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
		zap.String("stats_backend", cfg.Stats.Backend),
		zap.Int("max_in_flight", cfg.Server.MaxInFlight),
	)

	if err := serveUntilDone(ctx, app.Server, cfg.Server.ShutdownTimeout, logger); err != nil {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serveUntilDone roda o servidor até ctx encerrar (ou Start falhar) e só
// retorna depois que o Shutdown terminou de drenar as requisições em voo.
func serveUntilDone(ctx context.Context, srv lifecycle, timeout time.Duration, logger *zap.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	err := srv.Start()
	stop()
	<-drained
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
