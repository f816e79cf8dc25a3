package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"iam-gateway/config"
	"iam-gateway/gateway"
	"iam-gateway/health"
	"iam-gateway/middleware/circuitbreaker"
	"iam-gateway/middleware/ratelimit"
	"iam-gateway/middleware/ratelimit/domain"
	"iam-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	appName        = "iam-gateway"
	appDescription = "IAM API Gateway - Central routing for all IAM microservices"
)

// StatsReader expõe os contadores de decisões do rate limit em /gateway/metrics.
type StatsReader interface {
	Totals(ctx context.Context) (infra.Counters, error)
}

type Deps struct {
	Config   *config.Config
	Pipeline http.Handler
	Routes   *gateway.RouteTable
	Health   *health.Aggregator
	Breakers *circuitbreaker.Registry
	Fallback *gateway.FallbackResponder
	Stats    StatsReader
	InFlight *infra.ChanPool
	Logger   *zap.Logger
	Now      func() time.Time
}

type Server struct {
	deps    Deps
	handler http.Handler
	http    *http.Server
	logger  *zap.Logger
	now     func() time.Time
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{deps: d, logger: d.Logger, now: d.Now}
	s.handler = s.routes()

	sc := d.Config.Server
	s.http = &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	cfg := s.deps.Config
	r := chi.NewRouter()

	r.Use(gateway.RequestIDMiddleware)
	r.Use(accessLog(s.logger, s.now))
	r.Use(recoverer(s.logger, s.now))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Route("/gateway", func(r chi.Router) {
		r.NotFound(s.handleNotFound)
		r.MethodNotAllowed(s.handleMethodNotAllowed)
		r.Get("/health", s.handleHealth)
		r.Get("/info", s.handleInfo)
		r.Get("/metrics", s.handleMetrics)
	})
	r.HandleFunc("/fallback/{service}", s.handleFallback)
	r.HandleFunc("/fallback/*", s.handleFallback)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            cfg.Server.MaxInFlight,
			AcquireTimeout: cfg.Server.InFlightTimeout,
			Pool:           poolOrNil(s.deps.InFlight),
			Reject:         http.HandlerFunc(s.rejectOverloaded),
		}))
		r.Handle("/*", s.deps.Pipeline)
	})

	return otelhttp.NewHandler(r, appName)
}

// poolOrNil evita guardar um *ChanPool nil dentro da interface.
func poolOrNil(p *infra.ChanPool) domain.SlotPool {
	if p == nil {
		return nil
	}
	return p
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	gateway.WriteError(w, r, gateway.NotFound(r.URL.Path), s.now())
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	gateway.WriteError(w, r, gateway.MethodNotAllowed(r.Method, r.URL.Path), s.now())
}

func (s *Server) rejectOverloaded(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Fallback.Respond("", gateway.ReasonServiceUnavailable)
	s.logger.Warn("in-flight limit reached",
		zap.String("request_id", gateway.RequestIDFrom(r.Context())),
		zap.String("path", r.URL.Path))
	gateway.WriteError(w, r, e, s.now())
}

// Start bloqueia até o servidor parar. Shutdown faz ele devolver nil.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve usa um listener já aberto (testes e ":0").
func (s *Server) Serve(l net.Listener) error {
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
