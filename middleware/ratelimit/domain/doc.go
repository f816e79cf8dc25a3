// Package domain reúne os tipos do rate limit do gateway: políticas de token
// bucket, decisões, eventos de estatística e o pool de vagas em voo.
//
// Nada aqui importa net/http ou um backend concreto.
package domain
