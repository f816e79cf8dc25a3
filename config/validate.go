package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate devolve todos os problemas encontrados de uma vez.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		add("server.listen_addr is required")
	}
	if c.Server.MaxInFlight < 0 {
		add("server.max_in_flight must be >= 0")
	}

	for name, svc := range map[string]ServiceConfig{
		"user":         c.Services.User,
		"auth":         c.Services.Auth,
		"organization": c.Services.Organization,
		"chat":         c.Services.Chat,
	} {
		if err := validURL(svc.URL); err != nil {
			add("services.%s.url: %v", name, err)
		}
	}
	if c.Services.Admin.URL != "" {
		if err := validURL(c.Services.Admin.URL); err != nil {
			add("services.admin.url: %v", err)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.ReplenishRate <= 0 {
			add("rate_limit.replenish_rate must be > 0")
		}
		if c.RateLimit.BurstCapacity <= 0 {
			add("rate_limit.burst_capacity must be > 0")
		}
		if c.RateLimit.RequestedTokens < 0 || c.RateLimit.RequestedTokens > c.RateLimit.BurstCapacity {
			add("rate_limit.requested_tokens must be between 0 and burst_capacity")
		}
		if c.RateLimit.AdminRatio <= 0 || c.RateLimit.AdminRatio > 1 {
			add("rate_limit.admin_ratio must be in (0, 1]")
		} else if c.RateLimit.RequestedTokens > 0 {
			if admin := c.Policies()[PolicyAdmin]; c.RateLimit.RequestedTokens > admin.BurstCapacity {
				add("rate_limit.requested_tokens (%d) exceeds the admin burst capacity (%d = burst_capacity * admin_ratio)",
					c.RateLimit.RequestedTokens, admin.BurstCapacity)
			}
		}
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				add("rate_limit.backend=redis requires redis.enabled")
			}
		default:
			add("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold < 1 {
			add("circuit_breaker.failure_threshold must be >= 1")
		}
		if c.CircuitBreaker.Cooldown <= 0 {
			add("circuit_breaker.cooldown must be > 0")
		}
		if c.CircuitBreaker.TrialTimeout < 0 {
			add("circuit_breaker.trial_timeout must be >= 0")
		}
	}

	if c.Fallback.RetryAfterSeconds < 0 {
		add("fallback.retry_after_seconds must be >= 0")
	}
	if c.Health.Quorum < 1 {
		add("health.quorum must be >= 1")
	}

	switch c.Stats.Backend {
	case "", "none", "memory":
	case "redis":
		if !c.Redis.Enabled {
			add("stats.backend=redis requires redis.enabled")
		}
	default:
		add("stats.backend must be memory, redis or none, got %q", c.Stats.Backend)
	}

	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		add("redis.addr is required when redis.enabled=true")
	}

	routes, err := c.GatewayRoutes()
	if err != nil {
		errs = append(errs, err)
	} else {
		needsJWT := false
		for _, rt := range routes {
			if rt.RequiresAuth {
				needsJWT = true
			}
			if rt.RateLimitPolicy != "" && rt.RateLimitPolicy != PolicyStandard && rt.RateLimitPolicy != PolicyAdmin {
				add("route %s: unknown rate_limit_policy %q", rt.ID, rt.RateLimitPolicy)
			}
		}
		if needsJWT && strings.TrimSpace(c.JWT.Secret) == "" {
			add("jwt.secret is required when a route requires authentication")
		}
	}

	return errors.Join(errs...)
}

func validURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}
