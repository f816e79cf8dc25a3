package config

import (
	"time"
)

// Config é o esquema único de configuração do gateway.
type Config struct {
	Server         ServerConfig         `koanf:"server"`
	Services       ServicesConfig       `koanf:"services"`
	Routes         []RouteConfig        `koanf:"routes"`
	CORS           CORSConfig           `koanf:"cors"`
	JWT            JWTConfig            `koanf:"jwt"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	Proxy          ProxyConfig          `koanf:"proxy"`
	Fallback       FallbackConfig       `koanf:"fallback"`
	Health         HealthConfig         `koanf:"health"`
	Redis          RedisConfig          `koanf:"redis"`
	Stats          StatsConfig          `koanf:"stats"`
	Log            LogConfig            `koanf:"log"`
	Telemetry      TelemetryConfig      `koanf:"telemetry"`
}

type ServerConfig struct {
	ListenAddr        string        `koanf:"listen_addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// MaxInFlight limita requisições simultâneas no pipeline (0 = sem limite).
	MaxInFlight     int           `koanf:"max_in_flight"`
	InFlightTimeout time.Duration `koanf:"in_flight_timeout"`
}

type ServiceConfig struct {
	URL               string `koanf:"url"`
	HealthPath        string `koanf:"health_path"`
	HealthImplemented bool   `koanf:"health_implemented"`
}

type ServicesConfig struct {
	User         ServiceConfig `koanf:"user"`
	Auth         ServiceConfig `koanf:"auth"`
	Organization ServiceConfig `koanf:"organization"`
	Chat         ServiceConfig `koanf:"chat"`
	// Admin sem URL usa a do user-service.
	Admin ServiceConfig `koanf:"admin"`
}

// RouteConfig é uma rota explícita. Upstream aceita uma URL ou o nome de um
// serviço ("user", "auth", ...).
type RouteConfig struct {
	ID              string            `koanf:"id"`
	Pattern         string            `koanf:"pattern"`
	Methods         []string          `koanf:"methods"`
	Exclusions      []string          `koanf:"exclusions"`
	Service         string            `koanf:"service"`
	Upstream        string            `koanf:"upstream"`
	RequiresAuth    bool              `koanf:"requires_auth"`
	RateLimitPolicy string            `koanf:"rate_limit_policy"`
	KeyStrategy     string            `koanf:"key_strategy"`
	Breaker         string            `koanf:"breaker"`
	Fallback        string            `koanf:"fallback"`
	RequestHeaders  map[string]string `koanf:"request_headers"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type JWTConfig struct {
	Secret     string        `koanf:"secret"`
	Issuer     string        `koanf:"issuer"`
	Algorithms []string      `koanf:"algorithms"`
	Leeway     time.Duration `koanf:"leeway"`
}

type RateLimitConfig struct {
	Enabled         bool    `koanf:"enabled"`
	ReplenishRate   float64 `koanf:"replenish_rate"`
	BurstCapacity   int     `koanf:"burst_capacity"`
	RequestedTokens int     `koanf:"requested_tokens"`
	// AdminRatio multiplica reposição e burst da política padrão para as rotas de admin.
	AdminRatio         float64       `koanf:"admin_ratio"`
	Backend            string        `koanf:"backend"`
	IdleTTL            time.Duration `koanf:"idle_ttl"`
	MaxKeys            int           `koanf:"max_keys"`
	TrustXForwardedFor bool          `koanf:"trust_x_forwarded_for"`
	AddHeaders         bool          `koanf:"add_headers"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold int           `koanf:"failure_threshold"`
	Window           time.Duration `koanf:"window"`
	Cooldown         time.Duration `koanf:"cooldown"`
	// TrialTimeout libera outra chamada de teste no HALF_OPEN quando a anterior
	// não terminou. 0 = espera o resultado indefinidamente.
	TrialTimeout time.Duration `koanf:"trial_timeout"`
}

type ProxyConfig struct {
	ConnectTimeout      time.Duration `koanf:"connect_timeout"`
	ResponseTimeout     time.Duration `koanf:"response_timeout"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host"`
}

type FallbackConfig struct {
	RetryAfterSeconds int `koanf:"retry_after_seconds"`
}

type HealthConfig struct {
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
	StoreTimeout time.Duration `koanf:"store_timeout"`
	Quorum       int           `koanf:"quorum"`
}

type RedisConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	KeyPrefix   string        `koanf:"key_prefix"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

type StatsConfig struct {
	// Backend: memory | redis | none.
	Backend   string        `koanf:"backend"`
	Prefix    string        `koanf:"prefix"`
	TTL       time.Duration `koanf:"ttl"`
	Bucket    string        `koanf:"bucket"`
	TrackKeys bool          `koanf:"track_keys"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// Default devolve a configuração padrão. Load aplica arquivo e env por cima.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       90 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxInFlight:       100,
		},
		Services: ServicesConfig{
			User:         ServiceConfig{URL: "http://localhost:8081", HealthPath: "/api/v1/users/health", HealthImplemented: true},
			Auth:         ServiceConfig{URL: "http://localhost:8082", HealthPath: "/api/v1/auth/health", HealthImplemented: true},
			Organization: ServiceConfig{URL: "http://localhost:8083", HealthPath: "/api/v1/organizations/health"},
			Chat:         ServiceConfig{URL: "http://localhost:8084", HealthPath: "/api/v1/chat/health"},
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Authorization", "X-Gateway-Response", "X-Gateway-Version", "X-Service-Route"},
			AllowCredentials: true,
			MaxAge:           3600,
		},
		JWT: JWTConfig{
			Algorithms: []string{"HS256", "HS384", "HS512"},
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			ReplenishRate:   10,
			BurstCapacity:   20,
			RequestedTokens: 1,
			AdminRatio:      0.5,
			Backend:         "memory",
			IdleTTL:         10 * time.Minute,
			MaxKeys:         100_000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Window:           60 * time.Second,
			Cooldown:         30 * time.Second,
			TrialTimeout:     60 * time.Second,
		},
		Proxy: ProxyConfig{
			ConnectTimeout:      10 * time.Second,
			ResponseTimeout:     30 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 32,
		},
		Fallback: FallbackConfig{RetryAfterSeconds: 60},
		Health: HealthConfig{
			ProbeTimeout: 3 * time.Second,
			StoreTimeout: 3 * time.Second,
			Quorum:       2,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			KeyPrefix:   "gateway",
			DialTimeout: 3 * time.Second,
		},
		Stats: StatsConfig{
			Backend: "memory",
			Prefix:  "gateway:rate-limit:stats",
			TTL:     24 * time.Hour,
			Bucket:  "minute",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			ServiceName: "iam-gateway",
		},
	}
}
