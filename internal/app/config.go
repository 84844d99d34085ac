package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-store/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (COFFEE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (COFFEE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (COFFEE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
	Health       HealthConfig
	Discount     DiscountConfig
}

// RateLimitConfig controls the per-caller sliding window rate limiter.
// Authenticated callers are limited per user, anonymous ones per client IP.
type RateLimitConfig struct {
	Max          int           `default:"100" usage:"Max requests per window, 0 disables limiting"`
	Window       time.Duration `default:"1m"  usage:"Rate limit window duration"`
	AuthFailures int           `default:"10"  usage:"Rejected API keys per client IP and window before 429" flag:"auth-failures"`
	TrustProxy   bool          `default:"false" usage:"Take the client IP from the last X-Forwarded-For entry" flag:"trust-proxy"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// HealthConfig controls probe scheduling.
type HealthConfig struct {
	Interval       time.Duration `default:"10s"   usage:"Interval between health check rounds"`
	GoroutineLimit int           `default:"10000" usage:"Liveness fails above this many goroutines"`
}

// DiscountConfig lists the discount rules in evaluation order. Earlier rules
// win ties.
type DiscountConfig struct {
	Rules     []string `default:"percentage_above_threshold,free_cheapest_item" usage:"Ordered discount rule kinds"`
	Threshold string   `default:"12.00" usage:"Order total above which the percentage discount applies"`
	Rate      string   `default:"0.25"  usage:"Percentage discount rate in (0, 1]"`
	MinItems  int      `default:"3"     usage:"Number of items that makes the cheapest one free"`
}

// RuleConfigs converts the discount section into pricing rule configs.
func (c DiscountConfig) RuleConfigs() ([]pricing.RuleConfig, error) {
	threshold, err := decimal.NewFromString(c.Threshold)
	if err != nil {
		return nil, errors.Wrapf(err, "parse discount threshold %q", c.Threshold)
	}
	rate, err := decimal.NewFromString(c.Rate)
	if err != nil {
		return nil, errors.Wrapf(err, "parse discount rate %q", c.Rate)
	}

	cfgs := make([]pricing.RuleConfig, 0, len(c.Rules))
	for _, kind := range c.Rules {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		cfgs = append(cfgs, pricing.RuleConfig{
			Kind:      pricing.RuleKind(kind),
			Threshold: threshold,
			Rate:      rate,
			MinCount:  c.MinItems,
		})
	}
	return cfgs, nil
}

// LoadConfig loads configuration from environment variables, flags, YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "COFFEE",
		Files:     []string{"config.yaml", "/etc/coffee-store/config.yaml"},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	acfg.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	loader := aconfig.LoaderFor(&cfg, acfg)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set COFFEE_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's COFFEE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
