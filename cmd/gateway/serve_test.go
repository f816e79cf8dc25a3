package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeServer imita http.Server: Start devolve assim que o Shutdown começa,
// e o Shutdown só termina quando drain é liberado.
type fakeServer struct {
	startErr error
	stopping chan struct{}
	drain    chan struct{}
	drained  atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{stopping: make(chan struct{}), drain: make(chan struct{})}
}

func (f *fakeServer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stopping
	return nil
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	close(f.stopping)
	select {
	case <-f.drain:
		f.drained.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestServeUntilDone_WaitsForDrain(t *testing.T) {
	srv := newFakeServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv, time.Minute, zaptest.NewLogger(t)) }()

	cancel()
	select {
	case <-done:
		t.Fatal("returned while requests were still draining")
	case <-time.After(50 * time.Millisecond):
	}

	close(srv.drain)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("did not return after drain")
	}
	assert.True(t, srv.drained.Load())
}

func TestServeUntilDone_StartError(t *testing.T) {
	srv := newFakeServer()
	srv.startErr = errors.New("address already in use")
	close(srv.drain)

	err := serveUntilDone(context.Background(), srv, time.Second, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, srv.startErr)
}
