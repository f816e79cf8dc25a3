package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Upstream falso para rodar o gateway localmente: responde os caminhos dos
// serviços do IAM ecoando os headers de identidade que o gateway injeta.
//
// FAIL_EVERY=n faz cada n-ésima requisição responder 503 (para ver o
// circuit breaker abrir); SLOW_MS atrasa todas as respostas.
func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	failEvery, _ := strconv.Atoi(os.Getenv("FAIL_EVERY"))
	slowMS, _ := strconv.Atoi(os.Getenv("SLOW_MS"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newHandler(logger, failEvery, time.Duration(slowMS)*time.Millisecond),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example upstream listening", zap.String("addr", addr), zap.Int("fail_every", failEvery))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newHandler(logger *zap.Logger, failEvery int, delay time.Duration) http.Handler {
	var count atomic.Int64

	r := chi.NewRouter()
	for _, svc := range []string{"users", "auth", "organizations", "chat"} {
		svc := svc
		r.Get("/api/v1/"+svc+"/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": svc})
		})
	}
	r.HandleFunc("/api/v1/*", func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failEvery > 0 && n%int64(failEvery) == 0 {
			logger.Warn("simulated failure", zap.String("path", r.URL.Path), zap.Int64("n", n))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "simulated failure"})
			return
		}
		logger.Info("request received",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user", r.Header.Get("X-User-Id")),
			zap.String("request_id", r.Header.Get("X-Request-ID")))
		writeJSON(w, http.StatusOK, map[string]any{
			"path":           r.URL.Path,
			"method":         r.Method,
			"user":           r.Header.Get("X-User-Id"),
			"authenticated":  r.Header.Get("X-Authenticated") == "true",
			"requires_admin": r.Header.Get("X-Requires-Admin") == "true",
			"service_route":  r.Header.Get("X-Service-Route"),
			"request_id":     r.Header.Get("X-Request-ID"),
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
