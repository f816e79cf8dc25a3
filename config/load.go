package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix   = "IAMGW_"
	DefaultPath = "gateway.yaml"
)

// Load lê, nesta ordem: padrões, o YAML em path (arquivo ausente é ok) e as
// variáveis IAMGW_* ("__" separa níveis: IAMGW_RATE_LIMIT__BURST_CAPACITY).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize expande listas vindas de env como "a,b,c".
func (c *Config) normalize() {
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = splitList(c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = splitList(c.CORS.AllowedHeaders)
	c.CORS.ExposedHeaders = splitList(c.CORS.ExposedHeaders)
	c.JWT.Algorithms = splitList(c.JWT.Algorithms)
	c.Stats.Backend = strings.ToLower(strings.TrimSpace(c.Stats.Backend))
	c.RateLimit.Backend = strings.ToLower(strings.TrimSpace(c.RateLimit.Backend))
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
