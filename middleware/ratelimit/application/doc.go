// Package application decide se uma requisição consome tokens (falhando aberto
// quando o store não responde) e adquire vagas em voo com timeout.
//
// Só depende de domain.
package application
