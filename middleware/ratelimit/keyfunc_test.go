package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := ClientIPKeyFunc(true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestClientIPKeyFunc_IgnoresXForwardedForWhenUntrusted(t *testing.T) {
	fn := ClientIPKeyFunc(false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestClientIPKeyFunc_UnknownWhenNoAddress(t *testing.T) {
	fn := ClientIPKeyFunc(false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	if got := fn(r); got != UnknownKey {
		t.Fatalf("expected %q, got %q", UnknownKey, got)
	}
}
