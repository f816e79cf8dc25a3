package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"iam-gateway/middleware/ratelimit/domain"
)

type fakeStore struct {
	dec   domain.Decision
	err   error
	calls int
}

func (s *fakeStore) TryAcquire(context.Context, domain.Key, domain.Policy) (domain.Decision, error) {
	s.calls++
	return s.dec, s.err
}

var standard = domain.Policy{Name: "standard", ReplenishRate: 10, BurstCapacity: 20}

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{}
	dec, err := svc.Decide(context.Background(), "k", standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_AllowsWhenStoreAllows(t *testing.T) {
	store := &fakeStore{dec: domain.Decision{Allowed: true, Remaining: 3}}
	svc := Service{Store: store, RetryAfter: 5 * time.Second}
	dec, err := svc.Decide(context.Background(), "k", standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed || dec.Remaining != 3 {
		t.Fatalf("expected allowed with remaining 3, got %+v", dec)
	}
}

func TestService_Decide_KeepsStoreRetryAfter(t *testing.T) {
	store := &fakeStore{dec: domain.Decision{Allowed: false, RetryAfter: 3 * time.Second}}
	svc := Service{Store: store}
	dec, _ := svc.Decide(context.Background(), "k", standard)
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 3*time.Second {
		t.Fatalf("expected RetryAfter=3s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	store := &fakeStore{dec: domain.Decision{Allowed: false}}
	svc := Service{Store: store}
	dec, _ := svc.Decide(context.Background(), "k", standard)
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_FailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	svc := Service{Store: store}
	dec, err := svc.Decide(context.Background(), "k", standard)
	if err == nil {
		t.Fatalf("expected store error to be reported")
	}
	if !dec.Allowed {
		t.Fatalf("expected fail-open decision")
	}
}
