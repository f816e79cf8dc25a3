package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// NewRequestID gera o trace id do gateway ("gw-<uuid>").
func NewRequestID() string {
	return "gw-" + uuid.NewString()
}

// WithRequestID guarda o id no contexto.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// maxClientRequestID limita o id do cliente repassado ao upstream.
const maxClientRequestID = 128

// RequestIDMiddleware gera o id da requisição e o devolve na resposta. Um
// X-Request-ID do cliente nunca é reaproveitado: segue para o upstream em
// X-Client-Request-ID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderClientRequestID)
		if client := strings.TrimSpace(r.Header.Get(HeaderRequestID)); client != "" && len(client) <= maxClientRequestID {
			r.Header.Set(HeaderClientRequestID, client)
		}
		r.Header.Del(HeaderRequestID)

		id := NewRequestID()
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
