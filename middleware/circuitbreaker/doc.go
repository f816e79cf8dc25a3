// Package circuitbreaker implementa o circuit breaker por upstream do gateway.
//
// Before é chamado antes do proxy e devolve uma Permit (ou ErrOpen); After
// recebe a Permit de volta com o resultado observado (5xx, erro de conexão e
// timeout contam como falha). No HALF_OPEN só uma chamada de teste fica em voo
// por vez; as outras são rejeitadas até o teste terminar.
package circuitbreaker
