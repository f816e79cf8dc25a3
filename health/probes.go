package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HTTPProbe faz GET no endpoint de health do upstream; 2xx = UP.
type HTTPProbe struct {
	name   string
	url    string
	client *http.Client
}

func NewHTTPProbe(name, url string, client *http.Client) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProbe{name: name, url: url, client: client}
}

func (p *HTTPProbe) Name() string { return p.name }

func (p *HTTPProbe) Check(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return StatusDown, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return StatusDown, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusDown, fmt.Errorf("health endpoint responded %d", resp.StatusCode)
	}
	return StatusUp, nil
}

// StaticProbe devolve sempre o mesmo status (ex.: serviço ainda sem health).
type StaticProbe struct {
	name   string
	status Status
}

func NotImplemented(name string) StaticProbe {
	return StaticProbe{name: name, status: StatusNotImplemented}
}

func (p StaticProbe) Name() string { return p.name }

func (p StaticProbe) Check(context.Context) (Status, error) { return p.status, nil }

const (
	DefaultRedisHealthKey = "gateway:health:check"
	redisHealthValue      = "ping"
)

// RedisProbe grava e relê uma chave no Redis compartilhado.
type RedisProbe struct {
	rdb     *redis.Client
	key     string
	timeout time.Duration
}

func NewRedisProbe(rdb *redis.Client, key string, timeout time.Duration) *RedisProbe {
	if key == "" {
		key = DefaultRedisHealthKey
	}
	return &RedisProbe{rdb: rdb, key: key, timeout: timeout}
}

func (p *RedisProbe) Name() string { return "redis" }

func (p *RedisProbe) Check(ctx context.Context) (Status, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.rdb.Set(ctx, p.key, redisHealthValue, time.Minute).Err(); err != nil {
		return StatusDown, err
	}
	v, err := p.rdb.Get(ctx, p.key).Result()
	if err != nil {
		return StatusDown, err
	}
	if v != redisHealthValue {
		return StatusDown, errors.New("unexpected value read back from redis")
	}
	return StatusUp, nil
}
