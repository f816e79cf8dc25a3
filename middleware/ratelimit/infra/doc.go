// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: token bucket por (política, chave) usando golang.org/x/time/rate + LRU
//   - RedisStore: token bucket compartilhado via script Lua no Redis
//   - ChanPool: semáforo simples para limite de requisições em voo
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões allow/deny
package infra
