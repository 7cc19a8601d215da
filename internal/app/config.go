package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete terminal configuration, loadable from environment
// variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr    string `default:"0.0.0.0:8090" usage:"Terminal API listen address"`
	Backend BackendConfig
	Session SessionConfig
	Catalog CatalogConfig

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// BackendConfig points the terminal at the inventory backend.
type BackendConfig struct {
	URL             string        `usage:"Inventory backend base URL (POS_BACKEND_URL)" flag:"backend-url"`
	Token           string        `usage:"Bearer token for backend requests (POS_BACKEND_TOKEN)" flag:"backend-token"`
	Timeout         time.Duration `default:"10s" usage:"Per-request backend timeout"`
	BreakerFailures uint32        `default:"5"   usage:"Consecutive failures before the circuit opens" flag:"breaker-failures"`
	BreakerCooldown time.Duration `default:"30s" usage:"Open-circuit cooldown before probing the backend" flag:"breaker-cooldown"`
}

// SessionConfig controls terminal session lifecycle.
type SessionConfig struct {
	TTL           time.Duration `default:"30m" usage:"Idle session lifetime"`
	SweepInterval time.Duration `default:"1m"  usage:"Expired session sweep interval" flag:"sweep-interval"`
}

// CatalogConfig controls the catalog snapshot.
type CatalogConfig struct {
	// PrefetchTimeout bounds the startup catalog fetch. A failed prefetch is
	// not fatal: the snapshot stays empty until the first refresh succeeds.
	PrefetchTimeout time.Duration `default:"15s" usage:"Startup catalog prefetch timeout" flag:"prefetch-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos-terminal/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.Backend.URL == "" {
		return nil, errors.New("backend URL is required: set POS_BACKEND_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like PORT to the POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8090" {
		c.Addr = "0.0.0.0:" + port
	}
}
