package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"iam-gateway/middleware/auth"
	"iam-gateway/middleware/circuitbreaker"
	"iam-gateway/middleware/ratelimit"

	"go.uber.org/zap"
)

const DefaultVersion = "1.0.0"

type Options struct {
	Routes     *RouteTable
	Gate       *auth.Gate
	Limiter    *ratelimit.Limiter
	Breakers   *circuitbreaker.Registry
	Dispatcher Dispatcher
	Fallback   *FallbackResponder
	Version    string
	Logger     *zap.Logger
	Now        func() time.Time
}

// Pipeline é o driver: executa os estágios em ordem e para no primeiro que
// rejeitar a requisição.
//
//	route -> authenticate -> rate limit -> circuit breaker -> dispatch
type Pipeline struct {
	routes     *RouteTable
	gate       *auth.Gate
	limiter    *ratelimit.Limiter
	breakers   *circuitbreaker.Registry
	dispatcher Dispatcher
	fallback   *FallbackResponder
	version    string
	logger     *zap.Logger
	now        func() time.Time
	stages     []stage
}

// exchange é o estado de uma requisição ao longo dos estágios.
type exchange struct {
	w         http.ResponseWriter
	in        *http.Request
	out       *http.Request
	requestID string
	match     Match
	identity  auth.Identity
	breaker   *circuitbreaker.Breaker
	permit    circuitbreaker.Permit
	// done indica que a resposta já foi escrita (ou não há para quem escrever).
	done bool
}

type stage struct {
	name string
	run  func(x *exchange) *Error
}

func NewPipeline(o Options) (*Pipeline, error) {
	if o.Routes == nil {
		return nil, errors.New("pipeline: route table is required")
	}
	if o.Dispatcher == nil {
		return nil, errors.New("pipeline: dispatcher is required")
	}
	if o.Fallback == nil {
		return nil, errors.New("pipeline: fallback responder is required")
	}
	if o.Gate == nil {
		for _, rt := range o.Routes.Routes() {
			if rt.RequiresAuth {
				return nil, errors.New("pipeline: route " + rt.ID + " requires auth but no gate was configured")
			}
		}
	}
	if o.Version == "" {
		o.Version = DefaultVersion
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	p := &Pipeline{
		routes:     o.Routes,
		gate:       o.Gate,
		limiter:    o.Limiter,
		breakers:   o.Breakers,
		dispatcher: o.Dispatcher,
		fallback:   o.Fallback,
		version:    o.Version,
		logger:     o.Logger,
		now:        o.Now,
	}
	p.stages = []stage{
		{"route", p.route},
		{"authenticate", p.authenticate},
		{"rate_limit", p.rateLimit},
		{"circuit_breaker", p.checkBreaker},
		{"dispatch", p.dispatch},
	}
	return p, nil
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	x := &exchange{w: w, in: r, requestID: RequestIDFrom(r.Context())}
	if x.requestID == "" {
		x.requestID = NewRequestID()
		w.Header().Set(HeaderRequestID, x.requestID)
	}

	for _, st := range p.stages {
		if err := st.run(x); err != nil {
			p.reject(x, st.name, err)
			return
		}
		if x.done {
			return
		}
	}
}

func (p *Pipeline) reject(x *exchange, stageName string, e *Error) {
	fields := []zap.Field{
		zap.String("stage", stageName),
		zap.String("request_id", x.requestID),
		zap.String("method", x.in.Method),
		zap.String("path", x.in.URL.Path),
		zap.String("code", e.Code),
		zap.Int("status", e.Status),
	}
	if x.match.Route != nil {
		fields = append(fields, zap.String("route", x.match.Route.ID))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	p.logger.Warn("request rejected", fields...)

	WriteError(x.w, x.in, e, p.now())
}

func (p *Pipeline) route(x *exchange) *Error {
	m, ok := p.routes.Match(x.in.URL.Path, x.in.Method)
	if !ok {
		return NotFound(x.in.URL.Path)
	}
	x.match = m

	// cópia com headers próprios: o que vai para o upstream não vaza para x.in.
	out := x.in.Clone(x.in.Context())
	for _, h := range auth.IdentityHeaders {
		out.Header.Del(h)
	}
	out.Header.Del(HeaderRequiresAdmin)
	x.out = out

	rt := m.Route
	w := x.w.Header()
	w.Set(HeaderGatewayResponse, rt.Service)
	w.Set(HeaderGatewayVersion, p.version)
	w.Set(HeaderRequestID, x.requestID)
	return nil
}

func (p *Pipeline) authenticate(x *exchange) *Error {
	if !x.match.RequiresAuth() {
		return nil
	}
	id, err := p.gate.Authenticate(x.out, true)
	if err != nil {
		return Unauthorized(err)
	}
	x.identity = id
	p.logger.Debug("request authenticated",
		zap.String("request_id", x.requestID),
		zap.String("user", id.Subject),
		zap.String("route", x.match.Route.ID))
	return nil
}

func (p *Pipeline) rateLimit(x *exchange) *Error {
	rt := x.match.Route
	if p.limiter == nil || rt.RateLimitPolicy == "" {
		return nil
	}
	dec := p.limiter.Allow(x.w, x.out, ratelimit.Check{
		Policy:   rt.RateLimitPolicy,
		Strategy: rt.KeyStrategy,
		Identity: x.identity.Subject,
		Route:    rt.ID,
	})
	if !dec.Allowed {
		return RateLimited(rt.Service, dec.RetryAfterSeconds())
	}
	return nil
}

func (p *Pipeline) checkBreaker(x *exchange) *Error {
	rt := x.match.Route
	if p.breakers == nil || rt.Breaker == "" {
		return nil
	}
	b, ok := p.breakers.Get(rt.Breaker)
	if !ok {
		return nil
	}
	permit, err := b.Before()
	if err != nil {
		return p.fallback.Respond(rt.Fallback, ReasonCircuitOpen)
	}
	x.breaker, x.permit = b, permit
	return nil
}

func (p *Pipeline) dispatch(x *exchange) *Error {
	rt := x.match.Route
	out := x.out

	h := out.Header
	h.Set(HeaderGatewayRequest, "true")
	h.Set(HeaderServiceRoute, rt.Service)
	h.Set(HeaderGatewayVersion, p.version)
	h.Set(HeaderRequestID, x.requestID)
	for k, v := range rt.RequestHeaders {
		h.Set(k, v)
	}
	x.identity.Apply(h)

	// O ReverseProxy aborta com panic(http.ErrAbortHandler) quando a cópia do
	// corpo falha depois dos headers; a permissão do breaker volta mesmo assim.
	reported := false
	defer func() {
		if rec := recover(); rec != nil {
			if !reported && x.breaker != nil {
				outcome := circuitbreaker.Failure
				if x.in.Context().Err() != nil {
					outcome = circuitbreaker.Ignored
				}
				x.breaker.After(x.permit, outcome)
			}
			p.logger.Warn("upstream response aborted",
				zap.String("request_id", x.requestID),
				zap.String("route", rt.ID))
			panic(rec)
		}
	}()

	start := p.now()
	err := p.dispatcher.Forward(x.w, out, rt)
	outcome := p.outcome(x, err)
	if x.breaker != nil {
		x.breaker.After(x.permit, outcome)
	}
	reported = true

	switch {
	case err == nil:
		p.logger.Debug("request forwarded",
			zap.String("request_id", x.requestID),
			zap.String("route", rt.ID),
			zap.Duration("upstream_latency", p.now().Sub(start)))
		x.done = true
		return nil
	case outcome == circuitbreaker.Ignored:
		p.logger.Debug("client canceled request",
			zap.String("request_id", x.requestID),
			zap.String("route", rt.ID))
		x.done = true
		return nil
	}

	reason := ReasonUpstreamUnreachable
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status > 0 {
		reason = ReasonServiceUnavailable
	}
	fe := p.fallback.Respond(rt.Fallback, reason)
	fe.Err = err
	return fe
}

// outcome classifica o resultado para o breaker: cancelamento pelo cliente
// não conta como sucesso nem falha.
func (p *Pipeline) outcome(x *exchange, err error) circuitbreaker.Outcome {
	if err == nil {
		return circuitbreaker.Success
	}
	if errors.Is(err, context.Canceled) && x.in.Context().Err() != nil {
		return circuitbreaker.Ignored
	}
	return circuitbreaker.Failure
}
