package server

import (
	"fmt"
	"net/http"
	"time"

	"iam-gateway/gateway"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// accessLog registra uma linha por requisição.
func accessLog(logger *zap.Logger, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				zap.String("request_id", gateway.RequestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", now().Sub(start)),
				zap.String("route_service", ww.Header().Get(gateway.HeaderGatewayResponse)),
			)
		})
	}
}

// recoverer transforma pânicos em 500 com o envelope de erro.
func recoverer(logger *zap.Logger, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", gateway.RequestIDFrom(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"))
				gateway.WriteError(w, r, gateway.Internal(fmt.Errorf("panic: %v", rec)), now())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
