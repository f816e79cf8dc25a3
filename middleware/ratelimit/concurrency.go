package ratelimit

import (
	"net/http"
	"time"

	"iam-gateway/middleware/ratelimit/application"
	"iam-gateway/middleware/ratelimit/domain"
	"iam-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo criado a partir de Max (ex.: para expor InFlight em métricas).
	Pool domain.SlotPool
	// Reject escreve a resposta quando não há vaga. Padrão: 503 em texto puro.
	Reject http.Handler
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.Reject == nil {
		opts.Reject = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if r.Context().Err() != nil {
					// cliente desistiu enquanto esperava: não há para quem responder.
					return
				}
				opts.Reject.ServeHTTP(w, r)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
