package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"port"`
	Environment         string        `mapstructure:"environment"`
	DatabaseURL         string        `mapstructure:"database_url"`
	RedisURL            string        `mapstructure:"redis_url"`
	StripeSecretKey     string        `mapstructure:"stripe_secret_key"`
	StripeWebhookSecret string        `mapstructure:"stripe_webhook_secret"`
	StripeMaxRetries    int64         `mapstructure:"stripe_max_retries"`
	GatewayTimeout      time.Duration `mapstructure:"gateway_timeout"`
	ClaimLease          time.Duration `mapstructure:"claim_lease"`
	WaitBudget          time.Duration `mapstructure:"wait_budget"`
	CheckoutSuccessURL  string        `mapstructure:"checkout_success_url"`
	CheckoutCancelURL   string        `mapstructure:"checkout_cancel_url"`
	ReplayCacheTTL      time.Duration `mapstructure:"replay_cache_ttl"`
	AccountCacheTTL     time.Duration `mapstructure:"account_cache_ttl"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitPerMinute  int           `mapstructure:"rate_limit_per_minute"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("stripe_secret_key", "")
	v.SetDefault("stripe_webhook_secret", "")
	v.SetDefault("stripe_max_retries", 2)
	v.SetDefault("gateway_timeout", 10*time.Second)
	v.SetDefault("claim_lease", 30*time.Second)
	v.SetDefault("wait_budget", 3*time.Second)
	v.SetDefault("checkout_success_url", "http://localhost:3000/donations/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("checkout_cancel_url", "http://localhost:3000/donations/cancel")
	v.SetDefault("replay_cache_ttl", 24*time.Hour)
	v.SetDefault("account_cache_ttl", 60*time.Second)
	v.SetDefault("write_timeout", 15*time.Second)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("rate_limit_per_minute", 60)
}

// Load reads the environment and, when path is set, a YAML file. Environment
// variables win over the file; keys are the upper-cased field tags.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks what the HTTP server needs to start.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.ClaimLease <= c.GatewayTimeout {
		errs = append(errs, fmt.Errorf("CLAIM_LEASE (%s) must exceed GATEWAY_TIMEOUT (%s)", c.ClaimLease, c.GatewayTimeout))
	}
	if c.WriteTimeout <= c.GatewayTimeout {
		errs = append(errs, fmt.Errorf("WRITE_TIMEOUT (%s) must exceed GATEWAY_TIMEOUT (%s)", c.WriteTimeout, c.GatewayTimeout))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
