package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen é devolvido por Before quando o circuito não permite a chamada.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Outcome é o resultado observado da chamada ao upstream.
type Outcome int

const (
	Success Outcome = iota
	Failure
	// Ignored libera a permissão sem contar sucesso nem falha
	// (ex.: o cliente cancelou a requisição).
	Ignored
)

type Settings struct {
	Name string
	// FailureThreshold falhas consecutivas dentro de Window abrem o circuito.
	FailureThreshold int
	// Window zera a contagem de falhas quando vence. 0 = sem janela.
	Window time.Duration
	// Cooldown é quanto o circuito fica OPEN antes de liberar o teste (HALF_OPEN).
	Cooldown time.Duration
	// TrialTimeout libera uma nova chamada de teste quando a anterior não
	// reportou resultado a tempo. 0 = sem limite.
	TrialTimeout time.Duration
	// OnStateChange é chamado fora do lock a cada transição.
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

// Breaker é a máquina de estados de um upstream.
//
//	CLOSED    --(falhas >= threshold)--> OPEN
//	OPEN      --(cooldown vencido)-----> HALF_OPEN (uma única chamada de teste)
//	HALF_OPEN --(teste ok)-------------> CLOSED
//	HALF_OPEN --(teste falhou)---------> OPEN (openedAt = agora)
type Breaker struct {
	settings Settings

	mu            sync.Mutex
	state         State
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	trialInFlight bool
	trialStarted  time.Time
	// generation muda a cada transição; resultados de permissões de uma
	// geração anterior são descartados.
	generation uint64
}

// Permit é a autorização devolvida por Before; deve voltar em After exatamente uma vez.
type Permit struct {
	generation uint64
	trial      bool
}

// Trial diz se a permissão é a chamada de teste do HALF_OPEN.
func (p Permit) Trial() bool { return p.trial }

func New(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{
		settings:    s,
		windowStart: s.Now(),
	}
}

func (b *Breaker) Name() string { return b.settings.Name }

// State devolve o estado atual, já considerando um cooldown vencido.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooldownElapsed(b.settings.Now()) {
		return StateHalfOpen
	}
	return b.state
}

// Before decide se a chamada pode seguir para o upstream.
func (b *Breaker) Before() (Permit, error) {
	var change *transition

	b.mu.Lock()
	now := b.settings.Now()
	permit, err := func() (Permit, error) {
		switch b.state {
		case StateClosed:
			return Permit{generation: b.generation}, nil
		case StateOpen:
			if !b.cooldownElapsed(now) {
				return Permit{}, ErrOpen
			}
			change = b.setState(StateHalfOpen, now)
			return b.startTrial(now), nil
		default: // HALF_OPEN
			if b.trialInFlight {
				if !b.trialExpired(now) {
					return Permit{}, ErrOpen
				}
				// a permissão perdida fica numa geração antiga e é descartada.
				b.generation++
			}
			return b.startTrial(now), nil
		}
	}()
	b.mu.Unlock()

	b.notify(change)
	return permit, err
}

// After registra o resultado de uma chamada autorizada por Before.
func (b *Breaker) After(p Permit, outcome Outcome) {
	var change *transition

	b.mu.Lock()
	now := b.settings.Now()
	if p.generation == b.generation {
		change = b.record(p, outcome, now)
	}
	b.mu.Unlock()

	b.notify(change)
}

func (b *Breaker) record(p Permit, outcome Outcome, now time.Time) *transition {
	switch b.state {
	case StateHalfOpen:
		if !p.trial {
			return nil
		}
		b.trialInFlight = false
		switch outcome {
		case Success:
			return b.setState(StateClosed, now)
		case Failure:
			return b.setState(StateOpen, now)
		}
		return nil

	case StateClosed:
		switch outcome {
		case Success:
			b.failures = 0
		case Failure:
			if b.settings.Window > 0 && now.Sub(b.windowStart) >= b.settings.Window {
				b.failures = 0
				b.windowStart = now
			}
			b.failures++
			if b.failures >= b.settings.FailureThreshold {
				return b.setState(StateOpen, now)
			}
		}
	}
	return nil
}

type transition struct {
	from, to State
}

// setState precisa do lock.
func (b *Breaker) setState(to State, now time.Time) *transition {
	from := b.state
	b.state = to
	b.generation++
	b.failures = 0
	b.windowStart = now
	b.trialInFlight = false
	if to == StateOpen {
		b.openedAt = now
	}
	return &transition{from: from, to: to}
}

// startTrial precisa do lock.
func (b *Breaker) startTrial(now time.Time) Permit {
	b.trialInFlight = true
	b.trialStarted = now
	return Permit{generation: b.generation, trial: true}
}

func (b *Breaker) trialExpired(now time.Time) bool {
	return b.settings.TrialTimeout > 0 && now.Sub(b.trialStarted) >= b.settings.TrialTimeout
}

func (b *Breaker) cooldownElapsed(now time.Time) bool {
	return now.Sub(b.openedAt) >= b.settings.Cooldown
}

func (b *Breaker) notify(t *transition) {
	if t == nil || b.settings.OnStateChange == nil {
		return
	}
	b.settings.OnStateChange(b.settings.Name, t.from, t.to)
}
