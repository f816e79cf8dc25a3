package config

import (
	"fmt"
	"strings"

	"iam-gateway/gateway"
	"iam-gateway/middleware/ratelimit"
	"iam-gateway/middleware/ratelimit/domain"
)

// Nomes das políticas de rate limit.
const (
	PolicyStandard = "standard"
	PolicyAdmin    = "admin"
)

// AdminURL devolve a URL do admin-service (a do user-service quando vazia).
func (c *Config) AdminURL() string {
	if c.Services.Admin.URL != "" {
		return c.Services.Admin.URL
	}
	return c.Services.User.URL
}

// ServiceURLs devolve nome do serviço -> URL base.
func (c *Config) ServiceURLs() map[string]string {
	return map[string]string{
		gateway.UserService:         c.Services.User.URL,
		gateway.AuthService:         c.Services.Auth.URL,
		gateway.OrganizationService: c.Services.Organization.URL,
		gateway.ChatService:         c.Services.Chat.URL,
		gateway.AdminService:        c.AdminURL(),
	}
}

// Policies monta as políticas de token bucket; admin = padrão * admin_ratio.
func (c *Config) Policies() map[string]domain.Policy {
	std := domain.Policy{
		Name:            PolicyStandard,
		ReplenishRate:   c.RateLimit.ReplenishRate,
		BurstCapacity:   c.RateLimit.BurstCapacity,
		RequestedTokens: c.RateLimit.RequestedTokens,
	}
	return map[string]domain.Policy{
		PolicyStandard: std,
		PolicyAdmin:    std.Scaled(PolicyAdmin, c.RateLimit.AdminRatio),
	}
}

// GatewayRoutes devolve as rotas explícitas ou, sem elas, o conjunto padrão do IAM.
func (c *Config) GatewayRoutes() ([]gateway.Route, error) {
	if len(c.Routes) == 0 {
		return c.defaultRoutes(), nil
	}

	out := make([]gateway.Route, 0, len(c.Routes))
	for i, rc := range c.Routes {
		upstream, err := c.resolveUpstream(rc.Upstream)
		if err != nil {
			return nil, fmt.Errorf("routes[%d] (%s): %w", i, rc.ID, err)
		}
		strategy := ratelimit.KeyStrategy(strings.ToLower(rc.KeyStrategy))
		switch strategy {
		case "":
			strategy = ratelimit.KeyByIP
			if rc.RequiresAuth {
				strategy = ratelimit.KeyByUser
			}
		case ratelimit.KeyByIP, ratelimit.KeyByUser:
		default:
			return nil, fmt.Errorf("routes[%d] (%s): unknown key_strategy %q", i, rc.ID, rc.KeyStrategy)
		}
		out = append(out, gateway.Route{
			ID:              rc.ID,
			Pattern:         rc.Pattern,
			Methods:         rc.Methods,
			Exclusions:      rc.Exclusions,
			Service:         rc.Service,
			Upstream:        upstream,
			RequiresAuth:    rc.RequiresAuth,
			RateLimitPolicy: rc.RateLimitPolicy,
			KeyStrategy:     strategy,
			Breaker:         rc.Breaker,
			Fallback:        rc.Fallback,
			RequestHeaders:  rc.RequestHeaders,
		})
	}
	return out, nil
}

func (c *Config) resolveUpstream(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "user", gateway.UserService:
		return c.Services.User.URL, nil
	case "auth", gateway.AuthService:
		return c.Services.Auth.URL, nil
	case "organization", gateway.OrganizationService:
		return c.Services.Organization.URL, nil
	case "chat", gateway.ChatService:
		return c.Services.Chat.URL, nil
	case "admin", gateway.AdminService:
		return c.AdminURL(), nil
	}
	if err := validURL(v); err != nil {
		return "", fmt.Errorf("upstream %w", err)
	}
	return v, nil
}

func (c *Config) defaultRoutes() []gateway.Route {
	return []gateway.Route{
		{
			ID:              "user-service-protected",
			Pattern:         "/api/v1/users/**",
			Exclusions:      []string{c.Services.User.HealthPath},
			Service:         gateway.UserService,
			Upstream:        c.Services.User.URL,
			RequiresAuth:    true,
			RateLimitPolicy: PolicyStandard,
			KeyStrategy:     ratelimit.KeyByUser,
			Breaker:         "user-service-cb",
			Fallback:        gateway.UserService,
		},
		{
			ID:              "auth-service",
			Pattern:         "/api/v1/auth/**",
			Service:         gateway.AuthService,
			Upstream:        c.Services.Auth.URL,
			RateLimitPolicy: PolicyStandard,
			KeyStrategy:     ratelimit.KeyByIP,
			Breaker:         "auth-service-cb",
			Fallback:        gateway.AuthService,
		},
		{
			ID:              "organization-service",
			Pattern:         "/api/v1/organizations/**",
			Service:         gateway.OrganizationService,
			Upstream:        c.Services.Organization.URL,
			RequiresAuth:    true,
			RateLimitPolicy: PolicyStandard,
			KeyStrategy:     ratelimit.KeyByUser,
			Breaker:         "organization-service-cb",
			Fallback:        gateway.OrganizationService,
		},
		{
			ID:              "chat-service",
			Pattern:         "/api/v1/chat/**",
			Service:         gateway.ChatService,
			Upstream:        c.Services.Chat.URL,
			RequiresAuth:    true,
			RateLimitPolicy: PolicyStandard,
			KeyStrategy:     ratelimit.KeyByUser,
			Breaker:         "chat-service-cb",
			Fallback:        gateway.ChatService,
		},
		{
			ID:              "admin-routes",
			Pattern:         "/api/v1/admin/**",
			Service:         gateway.AdminService,
			Upstream:        c.AdminURL(),
			RequiresAuth:    true,
			RateLimitPolicy: PolicyAdmin,
			KeyStrategy:     ratelimit.KeyByUser,
			Breaker:         "admin-service-cb",
			Fallback:        gateway.AdminService,
			RequestHeaders:  map[string]string{gateway.HeaderRequiresAdmin: "true"},
		},
	}
}

// BreakerNames devolve os nomes de breaker usados pelas rotas, sem repetição.
func BreakerNames(routes []gateway.Route) []string {
	seen := make(map[string]struct{}, len(routes))
	var out []string
	for _, rt := range routes {
		if rt.Breaker == "" {
			continue
		}
		if _, ok := seen[rt.Breaker]; ok {
			continue
		}
		seen[rt.Breaker] = struct{}{}
		out = append(out, rt.Breaker)
	}
	return out
}
