package infra

import (
	"context"
	"sync"
)

// ChanPool é um semáforo baseado em channel; implementa domain.SlotPool.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade `max`.
func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// vaga livre tem prioridade sobre um ctx que acabou de vencer.
	select {
	case p.sem <- struct{}{}:
		return p.releaseOnce(), true
	default:
	}

	select {
	case p.sem <- struct{}{}:
		return p.releaseOnce(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) releaseOnce() func() {
	var once sync.Once
	return func() { once.Do(func() { <-p.sem }) }
}

// InFlight devolve quantas vagas estão ocupadas agora.
func (p *ChanPool) InFlight() int { return len(p.sem) }

func (p *ChanPool) Capacity() int { return cap(p.sem) }
