package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"iam-gateway/gateway"
	"iam-gateway/health"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type successEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	})
}

// HealthView é o corpo de /gateway/health.
type HealthView struct {
	Gateway         string                   `json:"gateway"`
	Application     string                   `json:"application"`
	ListenAddr      string                   `json:"listen_addr"`
	Timestamp       time.Time                `json:"timestamp"`
	Services        map[string]health.Status `json:"services"`
	ServiceURLs     map[string]string        `json:"service_urls"`
	OverallStatus   health.Overall           `json:"overall_status"`
	HealthyServices int                      `json:"healthy_services"`
	TotalServices   int                      `json:"total_services"`
	Records         []health.Record          `json:"records"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.deps.Health.CheckAll(r.Context())

	view := HealthView{
		Gateway:         "UP",
		Application:     appName,
		ListenAddr:      s.deps.Config.Server.ListenAddr,
		Timestamp:       rep.CheckedAt,
		Services:        rep.Statuses(),
		ServiceURLs:     s.deps.Config.ServiceURLs(),
		OverallStatus:   rep.Overall,
		HealthyServices: rep.Healthy,
		TotalServices:   rep.Total,
		Records:         rep.Records,
	}

	status := http.StatusOK
	if rep.Overall == health.Critical {
		status = http.StatusServiceUnavailable
	}
	s.logger.Debug("health check", zap.String("overall", string(rep.Overall)), zap.Int("healthy", rep.Healthy))
	s.writeSuccess(w, status, fmt.Sprintf("Gateway health check completed - Status: %s", rep.Overall), view)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Config

	routes := make(map[string]string)
	for _, rt := range s.deps.Routes.Routes() {
		routes[rt.Pattern] = fmt.Sprintf("%s (%s)", rt.Service, rt.Upstream)
	}

	s.writeSuccess(w, http.StatusOK, "Gateway information", map[string]any{
		"service":     appName,
		"version":     gateway.DefaultVersion,
		"description": appDescription,
		"listen_addr": cfg.Server.ListenAddr,
		"routes":      routes,
		"features": map[string]bool{
			"jwt_authentication": cfg.JWT.Secret != "",
			"rate_limiting":      cfg.RateLimit.Enabled,
			"circuit_breakers":   cfg.CircuitBreaker.Enabled,
			"cors_support":       len(cfg.CORS.AllowedOrigins) > 0,
			"health_aggregation": true,
			"request_logging":    true,
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	const external = "tracked_externally"
	m := map[string]any{
		"requests_total": external,
		"response_times": external,
		"service_urls":   s.deps.Config.ServiceURLs(),
	}

	if s.deps.InFlight != nil {
		m["active_connections"] = s.deps.InFlight.InFlight()
		m["max_in_flight"] = s.deps.InFlight.Capacity()
	} else {
		m["active_connections"] = external
	}

	if s.deps.Breakers != nil {
		m["circuit_breaker_states"] = s.deps.Breakers.States()
	} else {
		m["circuit_breaker_states"] = map[string]string{}
	}

	if s.deps.Stats != nil {
		totals, err := s.deps.Stats.Totals(r.Context())
		if err != nil {
			s.logger.Warn("rate limit stats unavailable", zap.Error(err))
			m["rate_limit_decisions"] = external
		} else {
			m["rate_limit_decisions"] = totals
		}
	}

	s.writeSuccess(w, http.StatusOK, "Gateway metrics (detailed metrics are exported via OpenTelemetry)", m)
}

// handleFallback responde o fallback de um serviço; serviço desconhecido
// recebe o payload genérico.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	e := s.deps.Fallback.Respond(service, gateway.ReasonCircuitOpen)
	s.logger.Warn("fallback served", zap.String("service", e.Service), zap.String("requested", service))
	gateway.WriteError(w, r, e, s.now())
}
