package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"iam-gateway/gateway"
	"iam-gateway/middleware/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithMissingFile(t *testing.T) {
	t.Setenv("IAMGW_JWT__SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 10.0, cfg.RateLimit.ReplenishRate)
	assert.Equal(t, 20, cfg.RateLimit.BurstCapacity)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.Cooldown)
	assert.Equal(t, 60, cfg.Fallback.RetryAfterSeconds)
	assert.Equal(t, 2, cfg.Health.Quorum)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: ":9090"
jwt:
  secret: from-file
rate_limit:
  replenish_rate: 4
  burst_capacity: 8
circuit_breaker:
  cooldown: 45s
cors:
  allowed_origins: ["https://app.example.com"]
`), 0o600))

	t.Setenv("IAMGW_RATE_LIMIT__BURST_CAPACITY", "12")
	t.Setenv("IAMGW_HEALTH__QUORUM", "3")
	t.Setenv("IAMGW_SERVICES__CHAT__URL", "http://chat:9000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 4.0, cfg.RateLimit.ReplenishRate)
	assert.Equal(t, 12, cfg.RateLimit.BurstCapacity)
	assert.Equal(t, 45*time.Second, cfg.CircuitBreaker.Cooldown)
	assert.Equal(t, 3, cfg.Health.Quorum)
	assert.Equal(t, "http://chat:9000", cfg.Services.Chat.URL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_EnvListIsSplit(t *testing.T) {
	t.Setenv("IAMGW_JWT__SECRET", "x")
	t.Setenv("IAMGW_CORS__ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")

	cfg.JWT.Secret = "x"
	require.NoError(t, cfg.Validate())

	cfg.RateLimit.ReplenishRate = 0
	cfg.CircuitBreaker.FailureThreshold = 0
	cfg.Services.User.URL = ""
	cfg.Stats.Backend = "redis"
	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"replenish_rate", "failure_threshold", "services.user.url", "stats.backend=redis"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RequestedTokensFitAdminBurst(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "x"
	cfg.RateLimit.BurstCapacity = 20
	cfg.RateLimit.AdminRatio = 0.5

	cfg.RateLimit.RequestedTokens = 10
	require.NoError(t, cfg.Validate())

	cfg.RateLimit.RequestedTokens = 11
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin burst capacity")

	cfg.CircuitBreaker.TrialTimeout = -time.Second
	assert.Contains(t, cfg.Validate().Error(), "circuit_breaker.trial_timeout")
}

func TestPolicies_AdminIsScaled(t *testing.T) {
	cfg := Default()
	p := cfg.Policies()

	assert.Equal(t, 10.0, p[PolicyStandard].ReplenishRate)
	assert.Equal(t, 20, p[PolicyStandard].BurstCapacity)
	assert.Equal(t, 5.0, p[PolicyAdmin].ReplenishRate)
	assert.Equal(t, 10, p[PolicyAdmin].BurstCapacity)
	assert.Equal(t, PolicyAdmin, p[PolicyAdmin].Name)
}

func TestGatewayRoutes_Defaults(t *testing.T) {
	cfg := Default()
	routes, err := cfg.GatewayRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 5)

	byID := map[string]gateway.Route{}
	for _, rt := range routes {
		byID[rt.ID] = rt
	}

	users := byID["user-service-protected"]
	assert.True(t, users.RequiresAuth)
	assert.Equal(t, []string{"/api/v1/users/health"}, users.Exclusions)
	assert.Equal(t, ratelimit.KeyByUser, users.KeyStrategy)

	authRoute := byID["auth-service"]
	assert.False(t, authRoute.RequiresAuth)
	assert.Equal(t, ratelimit.KeyByIP, authRoute.KeyStrategy)

	admin := byID["admin-routes"]
	assert.Equal(t, cfg.Services.User.URL, admin.Upstream)
	assert.Equal(t, PolicyAdmin, admin.RateLimitPolicy)
	assert.Equal(t, "true", admin.RequestHeaders[gateway.HeaderRequiresAdmin])

	assert.Equal(t, []string{
		"user-service-cb", "auth-service-cb", "organization-service-cb", "chat-service-cb", "admin-service-cb",
	}, BreakerNames(routes))

	_, err = gateway.NewRouteTable(routes)
	assert.NoError(t, err)
}

func TestGatewayRoutes_Explicit(t *testing.T) {
	cfg := Default()
	cfg.Routes = []RouteConfig{
		{ID: "reports", Pattern: "/api/v1/reports/**", Upstream: "http://reports:9000", RequiresAuth: true},
		{ID: "users-alias", Pattern: "/u/**", Upstream: "user"},
	}
	routes, err := cfg.GatewayRoutes()
	require.NoError(t, err)

	assert.Equal(t, ratelimit.KeyByUser, routes[0].KeyStrategy)
	assert.Equal(t, ratelimit.KeyByIP, routes[1].KeyStrategy)
	assert.Equal(t, cfg.Services.User.URL, routes[1].Upstream)

	cfg.Routes = []RouteConfig{{ID: "bad", Pattern: "/x", Upstream: "nowhere"}}
	_, err = cfg.GatewayRoutes()
	assert.Error(t, err)
}
