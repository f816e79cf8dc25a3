package application

import (
	"context"
	"fmt"
	"time"

	"iam-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store domain.LimiterStore
	// RetryAfter é o mínimo recomendado quando o store nega sem sugerir espera.
	RetryAfter time.Duration
}

// Decide consulta o store para a chave/política.
//
// Se o store falhar a decisão é "permitido" (fail-open) e o erro é devolvido
// para quem chamou registrar; um store compartilhado fora do ar não pode
// derrubar o gateway inteiro.
func (s Service) Decide(ctx context.Context, key domain.Key, policy domain.Policy) (domain.Decision, error) {
	if s.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	dec, err := s.Store.TryAcquire(ctx, key, policy)
	if err != nil {
		return domain.Decision{Allowed: true}, fmt.Errorf("rate limit store: %w", err)
	}
	if dec.Allowed {
		dec.RetryAfter = 0
		return dec, nil
	}
	if dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, nil
}
