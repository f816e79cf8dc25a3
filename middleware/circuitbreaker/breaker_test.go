package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock) *Breaker {
	return New(Settings{
		Name:             "user-service-cb",
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		Now:              clock.Now,
	})
}

func failN(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p, err := b.Before()
		require.NoError(t, err)
		b.After(p, Failure)
	}
}

func TestBreaker_OpensAfterThresholdAndRejects(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	failN(t, b, 4)
	assert.Equal(t, StateClosed, b.State())

	failN(t, b, 1)
	assert.Equal(t, StateOpen, b.State())

	_, err := b.Before()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SingleTrialInHalfOpen(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	failN(t, b, 5)

	clock.Advance(30 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	trial, err := b.Before()
	require.NoError(t, err)
	assert.True(t, trial.Trial())

	_, err = b.Before()
	assert.ErrorIs(t, err, ErrOpen, "second concurrent request during HALF_OPEN must be rejected")

	b.After(trial, Success)
	assert.Equal(t, StateClosed, b.State())

	_, err = b.Before()
	assert.NoError(t, err)
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	failN(t, b, 5)

	clock.Advance(30 * time.Second)
	trial, err := b.Before()
	require.NoError(t, err)
	b.After(trial, Failure)
	assert.Equal(t, StateOpen, b.State())

	// openedAt foi reiniciado: ainda falta um cooldown inteiro.
	clock.Advance(29 * time.Second)
	_, err = b.Before()
	assert.ErrorIs(t, err, ErrOpen)

	clock.Advance(time.Second)
	_, err = b.Before()
	assert.NoError(t, err)
}

func TestBreaker_IgnoredTrialFreesSlot(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	failN(t, b, 5)
	clock.Advance(30 * time.Second)

	trial, err := b.Before()
	require.NoError(t, err)
	b.After(trial, Ignored)
	assert.Equal(t, StateHalfOpen, b.State())

	next, err := b.Before()
	require.NoError(t, err)
	assert.True(t, next.Trial())
}

func TestBreaker_LostTrialExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New(Settings{
		Name:             "user-service-cb",
		FailureThreshold: 1,
		Cooldown:         30 * time.Second,
		TrialTimeout:     time.Minute,
		Now:              clock.Now,
	})
	failN(t, b, 1)
	clock.Advance(30 * time.Second)

	lost, err := b.Before()
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = b.Before()
	assert.ErrorIs(t, err, ErrOpen)

	clock.Advance(time.Second)
	next, err := b.Before()
	require.NoError(t, err)
	assert.True(t, next.Trial())

	// o resultado tardio da primeira tentativa não decide mais nada.
	b.After(lost, Failure)
	assert.Equal(t, StateHalfOpen, b.State())

	b.After(next, Success)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TrialWithoutTimeoutWaitsForOutcome(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	failN(t, b, 5)
	clock.Advance(30 * time.Second)

	_, err := b.Before()
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	_, err = b.Before()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	failN(t, b, 4)
	p, err := b.Before()
	require.NoError(t, err)
	b.After(p, Success)
	failN(t, b, 4)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_WindowResetsFailureCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	failN(t, b, 4)
	clock.Advance(2 * time.Minute)
	failN(t, b, 4)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ClosedSuccessIsIdempotent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var changes int
	b := New(Settings{
		Name:             "auth-service-cb",
		FailureThreshold: 5,
		Now:              clock.Now,
		OnStateChange:    func(string, State, State) { changes++ },
	})

	for i := 0; i < 100; i++ {
		p, err := b.Before()
		require.NoError(t, err)
		b.After(p, Success)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, changes)
}

func TestBreaker_StaleOutcomeIsDiscarded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	slow, err := b.Before()
	require.NoError(t, err)
	failN(t, b, 5)
	require.Equal(t, StateOpen, b.State())

	// sucesso de uma chamada iniciada antes da abertura não fecha o circuito.
	b.After(slow, Success)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ConcurrentTrialOnlyOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	failN(t, b, 5)
	clock.Advance(time.Minute)

	var mu sync.Mutex
	permitted := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Before(); err == nil {
				mu.Lock()
				permitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, permitted)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var got []string
	b := New(Settings{
		Name:             "chat-service-cb",
		FailureThreshold: 1,
		Cooldown:         time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			got = append(got, from.String()+"->"+to.String())
		},
	})

	failN(t, b, 1)
	clock.Advance(time.Second)
	p, err := b.Before()
	require.NoError(t, err)
	b.After(p, Success)

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, got)
}

func TestRegistry_StatesAndLookup(t *testing.T) {
	r := NewRegistry([]string{"user-service-cb", "auth-service-cb", "", "user-service-cb"}, Config{FailureThreshold: 1}, nil)

	assert.Equal(t, []string{"auth-service-cb", "user-service-cb"}, r.Names())

	b, ok := r.Get("auth-service-cb")
	require.True(t, ok)
	p, err := b.Before()
	require.NoError(t, err)
	b.After(p, Failure)

	assert.Equal(t, map[string]string{
		"auth-service-cb": "OPEN",
		"user-service-cb": "CLOSED",
	}, r.States())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}
