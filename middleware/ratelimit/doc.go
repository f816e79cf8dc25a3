// Package ratelimit fornece os adapters HTTP (net/http) para rate limit e limite de
// requisições em voo do gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (Policy, Decision, LimiterStore), sem net/http
//   - application: casos de uso (decisão allow/deny com fail-open, acquire/timeout) sem net/http
//   - infra: implementações concretas (token bucket em memória e no Redis, semáforo, estatísticas)
//   - ratelimit (este pacote): resolução de chave (usuário/IP), tradução para headers,
//     middleware de concorrência
//
// Fluxo no pipeline do gateway:
//
//  1. A rota casada diz a política (standard/admin) e a estratégia de chave
//  2. A chave é a identidade autenticada ("anonymous" sem identidade) ou o IP ("unknown" sem IP)
//  3. A camada application devolve a decisão; negado vira 429 com Retry-After
//  4. Permitido segue para o circuit breaker e o proxy
package ratelimit
