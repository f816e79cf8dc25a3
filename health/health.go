package health

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp             Status = "UP"
	StatusDown           Status = "DOWN"
	StatusNotImplemented Status = "NOT_IMPLEMENTED"
)

type Overall string

const (
	Healthy  Overall = "HEALTHY"
	Partial  Overall = "PARTIAL"
	Degraded Overall = "DEGRADED"
	Critical Overall = "CRITICAL"
)

// Probe verifica uma dependência. Erro com status DOWN é só para log.
type Probe interface {
	Name() string
	Check(ctx context.Context) (Status, error)
}

// Record é o resultado de uma probe.
type Record struct {
	Service   string        `json:"service"`
	Status    Status        `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

type Report struct {
	Overall   Overall   `json:"overall_status"`
	Records   []Record  `json:"records"`
	Healthy   int       `json:"healthy_services"`
	Total     int       `json:"total_services"`
	CheckedAt time.Time `json:"timestamp"`
}

// Statuses devolve nome -> status.
func (r Report) Statuses() map[string]Status {
	out := make(map[string]Status, len(r.Records))
	for _, rec := range r.Records {
		out[rec.Service] = rec.Status
	}
	return out
}

const (
	DefaultProbeTimeout = 3 * time.Second
	DefaultQuorum       = 2
)

// Aggregator é o HealthAggregator: roda as probes em paralelo, cada uma com
// timeout próprio, e calcula o status geral.
type Aggregator struct {
	probes  []Probe
	timeout time.Duration
	quorum  int
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Aggregator)

func WithProbeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithQuorum define quantas probes UP são necessárias para HEALTHY.
func WithQuorum(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.quorum = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(probes []Probe, opts ...Option) *Aggregator {
	a := &Aggregator{
		probes:  probes,
		timeout: DefaultProbeTimeout,
		quorum:  DefaultQuorum,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Quorum() int { return a.quorum }

// Names devolve os nomes das probes na ordem de registro.
func (a *Aggregator) Names() []string {
	out := make([]string, 0, len(a.probes))
	for _, p := range a.probes {
		out = append(out, p.Name())
	}
	return out
}

// CheckAll nunca falha: probe que estoura o timeout ou dá erro conta como DOWN.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	records := make([]Record, len(a.probes))

	var g errgroup.Group
	for i, p := range a.probes {
		i, p := i, p
		g.Go(func() error {
			records[i] = a.run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]Status, len(records))
	healthy := 0
	for i, r := range records {
		statuses[i] = r.Status
		if r.Status == StatusUp {
			healthy++
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Service < records[j].Service })

	return Report{
		Overall:   Aggregate(statuses, a.quorum),
		Records:   records,
		Healthy:   healthy,
		Total:     len(records),
		CheckedAt: a.now(),
	}
}

func (a *Aggregator) run(ctx context.Context, p Probe) Record {
	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := a.now()
	status, err := p.Check(pctx)
	if err == nil && pctx.Err() != nil {
		err = pctx.Err()
	}
	if err != nil && status != StatusNotImplemented {
		status = StatusDown
	}
	if status == "" {
		status = StatusDown
	}

	rec := Record{
		Service:   p.Name(),
		Status:    status,
		CheckedAt: a.now(),
		Latency:   a.now().Sub(start),
	}
	if err != nil {
		rec.Error = err.Error()
		a.logger.Warn("health probe failed", zap.String("service", p.Name()), zap.Error(err))
	}
	return rec
}

// Aggregate aplica a regra:
//
//	algum DOWN                          -> DEGRADED
//	algum NOT_IMPLEMENTED e algum UP    -> PARTIAL
//	UP >= quorum                        -> HEALTHY
//	caso contrário                      -> CRITICAL
func Aggregate(statuses []Status, quorum int) Overall {
	var up, down, notImpl int
	for _, s := range statuses {
		switch s {
		case StatusUp:
			up++
		case StatusDown:
			down++
		case StatusNotImplemented:
			notImpl++
		}
	}
	switch {
	case down > 0:
		return Degraded
	case notImpl > 0 && up > 0:
		return Partial
	case up >= quorum:
		return Healthy
	default:
		return Critical
	}
}
