package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoutes(upstream string) []Route {
	return []Route{
		{
			ID:           "user-service-protected",
			Pattern:      "/api/v1/users/**",
			Exclusions:   []string{"/api/v1/users/health"},
			Service:      UserService,
			Upstream:     upstream,
			RequiresAuth: true,
			Breaker:      "user-service-cb",
			Fallback:     UserService,
		},
		{
			ID:       "auth-service",
			Pattern:  "/api/v1/auth/**",
			Service:  AuthService,
			Upstream: upstream,
			Breaker:  "auth-service-cb",
			Fallback: AuthService,
		},
		{
			ID:             "admin-routes",
			Pattern:        "/api/v1/admin/**",
			Service:        AdminService,
			Upstream:       upstream,
			RequiresAuth:   true,
			Fallback:       AdminService,
			RequestHeaders: map[string]string{HeaderRequiresAdmin: "true"},
		},
	}
}

func TestRouteTable_Match(t *testing.T) {
	table, err := NewRouteTable(testRoutes("http://users:8081"))
	require.NoError(t, err)

	cases := []struct {
		path     string
		wantID   string
		excluded bool
		found    bool
	}{
		{"/api/v1/users", "user-service-protected", false, true},
		{"/api/v1/users/42", "user-service-protected", false, true},
		{"/api/v1/users/health", "user-service-protected", true, true},
		{"/api/v1/users/health/deep", "user-service-protected", false, true},
		{"/api/v1/users/health/../me", "user-service-protected", false, true},
		{"/api/v1/auth/login", "auth-service", false, true},
		{"/api/v1/usersx", "", false, false},
		{"/nope", "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			m, ok := table.Match(tc.path, http.MethodGet)
			require.Equal(t, tc.found, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.wantID, m.Route.ID)
			assert.Equal(t, tc.excluded, m.Excluded)
		})
	}
}

func TestRouteTable_MostSpecificWins(t *testing.T) {
	table, err := NewRouteTable([]Route{
		{ID: "all", Pattern: "/**", Upstream: "http://a:1"},
		{ID: "api", Pattern: "/api/**", Upstream: "http://b:1"},
		{ID: "api-exact", Pattern: "/api", Upstream: "http://c:1"},
		{ID: "api-dup", Pattern: "/api/**", Upstream: "http://d:1"},
	})
	require.NoError(t, err)

	m, ok := table.Match("/api/x", http.MethodGet)
	require.True(t, ok)
	assert.Equal(t, "api", m.Route.ID, "ties keep declaration order")

	m, ok = table.Match("/api", http.MethodGet)
	require.True(t, ok)
	assert.Equal(t, "api-exact", m.Route.ID)

	m, ok = table.Match("/other", http.MethodGet)
	require.True(t, ok)
	assert.Equal(t, "all", m.Route.ID)
}

func TestRouteTable_MethodFilter(t *testing.T) {
	table, err := NewRouteTable([]Route{
		{ID: "write", Pattern: "/api/**", Methods: []string{"post"}, Upstream: "http://a:1"},
		{ID: "read", Pattern: "/api/**", Upstream: "http://b:1"},
	})
	require.NoError(t, err)

	m, _ := table.Match("/api/x", http.MethodPost)
	assert.Equal(t, "write", m.Route.ID)
	m, _ = table.Match("/api/x", http.MethodGet)
	assert.Equal(t, "read", m.Route.ID)
}

func TestNewRouteTable_Validation(t *testing.T) {
	_, err := NewRouteTable(nil)
	assert.Error(t, err)

	_, err = NewRouteTable([]Route{{ID: "a", Pattern: "/a", Upstream: "http://x:1"}, {ID: "a", Pattern: "/b", Upstream: "http://x:1"}})
	assert.Error(t, err)

	_, err = NewRouteTable([]Route{{ID: "a", Pattern: "a", Upstream: "http://x:1"}})
	assert.Error(t, err)

	_, err = NewRouteTable([]Route{{ID: "a", Pattern: "/a", Upstream: "not a url"}})
	assert.Error(t, err)
}
