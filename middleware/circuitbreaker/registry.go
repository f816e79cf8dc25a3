package circuitbreaker

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Registry guarda um Breaker por nome. Os nomes são fixados na criação
// (um por grupo de rotas), então o mapa é só leitura depois de NewRegistry
// e cada Breaker tem o próprio lock.
type Registry struct {
	breakers map[string]*Breaker
}

type Config struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
	TrialTimeout     time.Duration
	Now              func() time.Time
}

func NewRegistry(names []string, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	onChange := func(name string, from, to State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}

	r := &Registry{breakers: make(map[string]*Breaker, len(names))}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := r.breakers[name]; ok {
			continue
		}
		r.breakers[name] = New(Settings{
			Name:             name,
			FailureThreshold: cfg.FailureThreshold,
			Window:           cfg.Window,
			Cooldown:         cfg.Cooldown,
			TrialTimeout:     cfg.TrialTimeout,
			OnStateChange:    onChange,
			Now:              cfg.Now,
		})
	}
	return r
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	b, ok := r.breakers[name]
	return b, ok
}

// Names devolve os nomes em ordem alfabética.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// States devolve o estado de cada breaker ("CLOSED", "OPEN", "HALF_OPEN").
func (r *Registry) States() map[string]string {
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}
