package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (DOMI_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DOMI_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Broker      BrokerConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// BrokerConfig controls the RabbitMQ connection and the fulfillment queue.
type BrokerConfig struct {
	URL   string `usage:"RabbitMQ connection URL (DOMI_BROKER_URL or RABBITMQ_URL)" flag:"broker-url"`
	Queue string `default:"order_queue" usage:"Durable queue name for order events"`
	// PrefilterRefresh is how often the coupon-code prefilter reloads.
	PrefilterRefresh time.Duration `default:"1m" usage:"Coupon prefilter refresh interval" flag:"prefilter-refresh"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
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
		EnvPrefix: "DOMI",
		Files:     []string{"config.yaml", "/etc/domifood/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DOMI_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Broker.URL == "" {
		return nil, errors.New("broker URL is required: set DOMI_BROKER_URL or RABBITMQ_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps standard environment variable names
// (DATABASE_URL, RABBITMQ_URL, PORT) onto the DOMI_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Broker.URL == "" {
		if v := os.Getenv("RABBITMQ_URL"); v != "" {
			c.Broker.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
