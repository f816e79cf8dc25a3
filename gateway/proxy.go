package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Dispatcher encaminha uma requisição já admitida ao upstream da rota.
//
// Em caso de sucesso a resposta já foi escrita em w. Em caso de erro nada foi
// escrito e quem chama responde (fallback).
type Dispatcher interface {
	Forward(w http.ResponseWriter, r *http.Request, route *Route) error
}

// UpstreamError é a falha de uma chamada ao upstream: resposta 5xx
// (Status > 0), timeout ou erro de conexão.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream responded %d", e.Status)
	}
	return fmt.Sprintf("upstream unreachable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type ProxyOptions struct {
	ConnectTimeout      time.Duration
	ResponseTimeout     time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
	// Transport substitui o transport padrão (testes).
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// ProxyDispatcher tem um httputil.ReverseProxy por rota, todos sobre o mesmo
// transport instrumentado com otelhttp.
type ProxyDispatcher struct {
	proxies         map[string]*httputil.ReverseProxy
	responseTimeout time.Duration
	logger          *zap.Logger
}

type resultKey struct{}

// proxyResult recebe o erro do ErrorHandler da requisição.
type proxyResult struct {
	err error
}

func NewProxyDispatcher(routes []Route, opts ProxyOptions) (*ProxyDispatcher, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 30 * time.Second
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 32
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ResponseTimeout,
			IdleConnTimeout:       opts.IdleConnTimeout,
			MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
			ExpectContinueTimeout: time.Second,
		}
	}
	transport = otelhttp.NewTransport(transport)

	d := &ProxyDispatcher{
		proxies:         make(map[string]*httputil.ReverseProxy, len(routes)),
		responseTimeout: opts.ResponseTimeout,
		logger:          opts.Logger,
	}
	for i := range routes {
		rt := routes[i]
		target, err := url.Parse(rt.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %q: parse upstream: %w", rt.ID, err)
		}
		d.proxies[rt.ID] = d.newProxy(target, transport)
	}
	return d, nil
}

func (d *ProxyDispatcher) newProxy(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport:     transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode >= http.StatusInternalServerError {
				return &UpstreamError{Status: resp.StatusCode}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if res, ok := r.Context().Value(resultKey{}).(*proxyResult); ok {
				res.err = err
				return
			}
			// chamada fora de Forward
			d.logger.Error("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

func (d *ProxyDispatcher) Forward(w http.ResponseWriter, r *http.Request, route *Route) error {
	proxy, ok := d.proxies[route.ID]
	if !ok {
		return fmt.Errorf("no proxy for route %q", route.ID)
	}

	// ResponseTimeout cobre a troca inteira, inclusive o corpo da resposta.
	ctx, cancel := context.WithTimeout(r.Context(), d.responseTimeout)
	defer cancel()

	res := &proxyResult{}
	proxy.ServeHTTP(w, r.WithContext(context.WithValue(ctx, resultKey{}, res)))

	if res.err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(res.err, &ue) {
		return ue
	}
	return &UpstreamError{Err: res.err}
}
