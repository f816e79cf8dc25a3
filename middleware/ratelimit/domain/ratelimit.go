package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Policy descreve um token bucket: capacidade (burst) e reposição (tokens/segundo).
//
// Cada política tem buckets próprios: a mesma chave em políticas diferentes
// não compartilha tokens.
type Policy struct {
	Name            string
	ReplenishRate   float64
	BurstCapacity   int
	RequestedTokens int
}

// Tokens devolve quantos tokens uma requisição consome (padrão 1).
func (p Policy) Tokens() int {
	if p.RequestedTokens <= 0 {
		return 1
	}
	return p.RequestedTokens
}

// Scaled devolve uma política derivada com reposição e burst multiplicados por ratio.
// Usado para a política de admin (ex.: ratio 0.5 = metade da padrão).
// O burst nunca fica abaixo de 1.
func (p Policy) Scaled(name string, ratio float64) Policy {
	out := p
	out.Name = name
	out.ReplenishRate = p.ReplenishRate * ratio
	out.BurstCapacity = int(float64(p.BurstCapacity) * ratio)
	if out.BurstCapacity < 1 {
		out.BurstCapacity = 1
	}
	return out
}

// LimiterStore decide, de forma atômica por chave, se a requisição pode consumir tokens.
//
// Observação: a implementação pode ser em memória (x/time/rate) ou num store
// compartilhado (Redis). Erro significa que o store não respondeu; quem chama
// decide se falha aberto ou fechado.
type LimiterStore interface {
	TryAcquire(ctx context.Context, key Key, policy Policy) (Decision, error)
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Remaining é a quantidade de tokens que sobrou no bucket depois da decisão.
	Remaining float64
}

// RetryAfterSeconds arredonda RetryAfter para cima em segundos inteiros.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
