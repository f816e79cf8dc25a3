package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iam-gateway/middleware/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newBreakerPipeline monta só a rota pública do auth-service com um breaker
// que abre na primeira falha.
func newBreakerPipeline(t *testing.T, upstream http.Handler, opts ProxyOptions, clock *testClock) (*Pipeline, *circuitbreaker.Breaker) {
	t.Helper()
	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	table, err := NewRouteTable([]Route{{
		ID:       "auth-service",
		Pattern:  "/api/v1/auth/**",
		Service:  AuthService,
		Upstream: up.URL,
		Breaker:  "auth-service-cb",
		Fallback: AuthService,
	}})
	require.NoError(t, err)

	breakers := circuitbreaker.NewRegistry([]string{"auth-service-cb"},
		circuitbreaker.Config{FailureThreshold: 1, Cooldown: 30 * time.Second, Now: clock.Now}, nil)

	opts.Logger = zaptest.NewLogger(t)
	dispatcher, err := NewProxyDispatcher(table.Routes(), opts)
	require.NoError(t, err)

	p, err := NewPipeline(Options{
		Routes:     table,
		Breakers:   breakers,
		Dispatcher: dispatcher,
		Fallback:   NewFallbackResponder(60, nil),
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	b, _ := breakers.Get("auth-service-cb")
	return p, b
}

// fetch passa por um http.Server de verdade, onde o ReverseProxy aborta
// respostas truncadas com panic(http.ErrAbortHandler).
func fetch(t *testing.T, front *httptest.Server, path string) int {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(front.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.ReadAll(resp.Body)
	return resp.StatusCode
}

func TestPipeline_TruncatedTrialReleasesBreaker(t *testing.T) {
	const (
		fail = iota
		truncate
		healthy
	)
	var mode atomic.Int64
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}

	p, b := newBreakerPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch mode.Load() {
		case fail:
			w.WriteHeader(http.StatusInternalServerError)
		case truncate:
			w.Header().Set("Content-Length", "1000")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}), ProxyOptions{}, clock)

	front := httptest.NewServer(p)
	t.Cleanup(front.Close)

	mode.Store(fail)
	assert.Equal(t, http.StatusServiceUnavailable, fetch(t, front, "/api/v1/auth/login"))
	require.Equal(t, circuitbreaker.StateOpen, b.State())

	clock.Advance(30 * time.Second)
	mode.Store(truncate)
	client := &http.Client{Timeout: 5 * time.Second}
	if resp, err := client.Get(front.URL + "/api/v1/auth/login"); err == nil {
		_, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Error(t, err, "truncated body must surface as a read error")
	}
	require.Eventually(t, func() bool { return b.State() == circuitbreaker.StateOpen },
		time.Second, 10*time.Millisecond, "aborted trial must reopen the breaker")

	clock.Advance(30 * time.Second)
	mode.Store(healthy)
	assert.Equal(t, http.StatusOK, fetch(t, front, "/api/v1/auth/login"))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestPipeline_SlowHeadersBecomeFallback(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	p, b := newBreakerPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}), ProxyOptions{ResponseTimeout: 50 * time.Millisecond}, clock)

	rec := httptest.NewRecorder()
	start := time.Now()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ReasonUpstreamUnreachable, rec.Header().Get(HeaderFallbackReason))
	body := decodeEnvelope(t, rec)
	assert.Equal(t, CodeUpstreamError, body["error"])
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestPipeline_StalledBodyIsCutOff(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	p, b := newBreakerPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[`))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}), ProxyOptions{ResponseTimeout: 100 * time.Millisecond}, clock)

	front := httptest.NewServer(p)
	t.Cleanup(front.Close)

	start := time.Now()
	fetch(t, front, "/api/v1/auth/login")
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Eventually(t, func() bool { return b.State() == circuitbreaker.StateOpen },
		time.Second, 10*time.Millisecond, "stalled upstream must count as a failure")
}
