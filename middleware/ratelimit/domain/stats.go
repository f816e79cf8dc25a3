package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão allow/deny do rate limit, gravada depois de cada
// verificação. Key só é agregada quando o store foi configurado para isso.
type StatsEvent struct {
	Key     Key
	Policy  string
	Allowed bool

	Method string
	// Route é o id da rota do gateway (não o path cru, para limitar cardinalidade).
	Route string

	At time.Time
}

// StatsStore grava eventos de decisão. Erro aqui nunca rejeita a requisição.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
