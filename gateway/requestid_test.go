package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDMiddleware_AlwaysGenerates(t *testing.T) {
	var seenID, seenClient, seenHeader string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFrom(r.Context())
		seenClient = r.Header.Get(HeaderClientRequestID)
		seenHeader = r.Header.Get(HeaderRequestID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
	req.Header.Set(HeaderRequestID, "client-chosen")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, strings.HasPrefix(seenID, "gw-"))
	assert.Equal(t, seenID, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "client-chosen", seenClient)
	assert.Empty(t, seenHeader)

	first := seenID
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
	req.Header.Set(HeaderRequestID, "client-chosen")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, first, seenID, "same client id must still get a fresh gateway id")
}

func TestRequestIDMiddleware_DropsOversizedClientID(t *testing.T) {
	var seenClient string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenClient = r.Header.Get(HeaderClientRequestID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 129))
	req.Header.Set(HeaderClientRequestID, "spoofed")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, seenClient)
}
