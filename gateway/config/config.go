package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig points the gateway at the ledger daemon's JSON-RPC endpoint.
type NodeConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// AuthTokenEnv names the environment variable holding the bearer token
	// the gateway forwards on mutating calls. The token never lives in the
	// file.
	AuthTokenEnv string `yaml:"authTokenEnv"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName   string `yaml:"serviceName"`
	Metrics       bool   `yaml:"metrics"`
	LogRequests   bool   `yaml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// HMACSecretEnv names the environment variable holding the JWT signing
	// secret. The secret never lives in the file.
	HMACSecretEnv string        `yaml:"hmacSecretEnv"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ScopeClaim    string        `yaml:"scopeClaim"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

// IdempotencyConfig enables replay protection for mutating requests carrying
// an Idempotency-Key header.
type IdempotencyConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the sqlite file backing the response cache.
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type Config struct {
	ListenAddress string                     `yaml:"listen"`
	ReadTimeout   time.Duration              `yaml:"readTimeout"`
	WriteTimeout  time.Duration              `yaml:"writeTimeout"`
	IdleTimeout   time.Duration              `yaml:"idleTimeout"`
	Node          NodeConfig                 `yaml:"node"`
	RateLimits    map[string]RateLimitConfig `yaml:"rateLimits"`
	Observability ObservabilityConfig        `yaml:"observability"`
	Auth          AuthConfig                 `yaml:"auth"`
	Idempotency   IdempotencyConfig          `yaml:"idempotency"`
	CORS          CORSConfig                 `yaml:"cors"`
}

// Load reads the gateway config. An empty path returns validated defaults
// suitable for local development.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Node: NodeConfig{
			Endpoint:     "http://127.0.0.1:8645",
			Timeout:      15 * time.Second,
			AuthTokenEnv: "COLEND_RPC_TOKEN",
		},
		Observability: ObservabilityConfig{
			ServiceName:   "colend-gateway",
			Metrics:       true,
			LogRequests:   true,
			MetricsPrefix: "colend_gateway",
		},
		Auth: AuthConfig{
			HMACSecretEnv: "COLEND_GATEWAY_JWT_SECRET",
			ScopeClaim:    "scope",
			ClockSkew:     2 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			TTL: 24 * time.Hour,
		},
	}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.Node.Timeout <= 0 {
		cfg.Node.Timeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Node.AuthTokenEnv) == "" {
		cfg.Node.AuthTokenEnv = "COLEND_RPC_TOKEN"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "colend-gateway"
	}
	if strings.TrimSpace(cfg.Observability.MetricsPrefix) == "" {
		cfg.Observability.MetricsPrefix = "colend_gateway"
	}
	if strings.TrimSpace(cfg.Auth.HMACSecretEnv) == "" {
		cfg.Auth.HMACSecretEnv = "COLEND_GATEWAY_JWT_SECRET"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Idempotency.TTL <= 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Node.Endpoint) == "" {
		return fmt.Errorf("node.endpoint required")
	}
	if _, err := cfg.NodeURL(); err != nil {
		return err
	}
	if cfg.Auth.Enabled && strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv)) == "" {
		return fmt.Errorf("auth enabled but %s is not set", cfg.Auth.HMACSecretEnv)
	}
	if cfg.Idempotency.Enabled && strings.TrimSpace(cfg.Idempotency.Path) == "" {
		return fmt.Errorf("idempotency.path required when idempotency is enabled")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rateLimits.%s.requestsPerMinute must be positive", name)
		}
	}
	return nil
}

// NodeURL parses the daemon endpoint.
func (cfg *Config) NodeURL() (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.Node.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse node endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https":
		return parsed, nil
	default:
		return nil, fmt.Errorf("unsupported node endpoint scheme %q", parsed.Scheme)
	}
}

// NodeAuthToken resolves the forwarded bearer token from the environment.
func (cfg *Config) NodeAuthToken() string {
	return strings.TrimSpace(os.Getenv(cfg.Node.AuthTokenEnv))
}

// AuthSecret resolves the JWT signing secret from the environment.
func (cfg *Config) AuthSecret() string {
	return strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv))
}
