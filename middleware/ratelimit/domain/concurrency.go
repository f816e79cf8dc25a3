package domain

import "context"

// SlotPool limita quantas requisições o gateway atende ao mesmo tempo.
//
// Acquire espera por uma vaga até o ctx encerrar; o release devolvido libera a
// vaga e deve ser chamado uma única vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
