/**
 * @description
 * This package handles the configuration management for the settlement service. It uses
 * Viper to read settings from environment variables or an optional .env file, applies
 * defaults and normalizes the values the rest of the service relies on.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */

package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all the configuration variables for the settlement service.
type Config struct {
	ServerPort                    string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                   string  `mapstructure:"DATABASE_URL"`
	RedisURL                      string  `mapstructure:"REDIS_URL"`
	RedisKeyPrefix                string  `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL                   string  `mapstructure:"RABBITMQ_URL"`
	EventsExchange                string  `mapstructure:"EVENTS_EXCHANGE"`
	PaystackSecretKey             string  `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackWebhookSecret         string  `mapstructure:"PAYSTACK_WEBHOOK_SECRET"`
	PaystackBaseURL               string  `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackCallbackURL           string  `mapstructure:"PAYSTACK_CALLBACK_URL"`
	AuthJWTSecret                 string  `mapstructure:"AUTH_JWT_SECRET"`
	PlatformFeePercent            float64 `mapstructure:"PLATFORM_FEE_PERCENT"`
	DefaultCurrency               string  `mapstructure:"DEFAULT_CURRENCY"`
	WebhookRateLimitMax           int     `mapstructure:"WEBHOOK_RATE_LIMIT_MAX"`
	WebhookRateLimitWindowSeconds int     `mapstructure:"WEBHOOK_RATE_LIMIT_WINDOW_SECONDS"`
	SettlementLeaseSeconds        int     `mapstructure:"SETTLEMENT_LEASE_SECONDS"`
	SettlementSweepSchedule       string  `mapstructure:"SETTLEMENT_SWEEP_SCHEDULE"`
	OutboxFlushSchedule           string  `mapstructure:"OUTBOX_FLUSH_SCHEDULE"`
	PendingVerifyAfterMinutes     int     `mapstructure:"PENDING_VERIFY_AFTER_MINUTES"`
	CORSFallbackOrigins           string  `mapstructure:"CORS_FALLBACK_ORIGINS"`
	CORSCacheTTLSeconds           int     `mapstructure:"CORS_CACHE_TTL_SECONDS"`
	LogLevel                      string  `mapstructure:"LOG_LEVEL"`
}

// DefaultFallbackOrigins is used when neither the config store nor the environment
// provides an allow-list.
var DefaultFallbackOrigins = []string{
	"https://bookpay.app",
	"https://www.bookpay.app",
	"https://dashboard.bookpay.app",
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8081",
}

// LoadConfig reads configuration from environment variables and an optional .env file
// located in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "bookpay")
	viper.SetDefault("EVENTS_EXCHANGE", "bookpay.events")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("PLATFORM_FEE_PERCENT", 5.0)
	viper.SetDefault("DEFAULT_CURRENCY", "GHS")
	viper.SetDefault("WEBHOOK_RATE_LIMIT_MAX", 50)
	viper.SetDefault("WEBHOOK_RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("SETTLEMENT_LEASE_SECONDS", 120)
	viper.SetDefault("SETTLEMENT_SWEEP_SCHEDULE", "@every 5m")
	viper.SetDefault("OUTBOX_FLUSH_SCHEDULE", "@every 10s")
	viper.SetDefault("PENDING_VERIFY_AFTER_MINUTES", 15)
	viper.SetDefault("CORS_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("LOG_LEVEL", "info")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "SUPABASE_DB_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYSTACK_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_CALLBACK_URL")
	_ = viper.BindEnv("AUTH_JWT_SECRET", "AUTH_JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_MAX")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_WINDOW_SECONDS")
	_ = viper.BindEnv("SETTLEMENT_LEASE_SECONDS")
	_ = viper.BindEnv("SETTLEMENT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_FLUSH_SCHEDULE")
	_ = viper.BindEnv("PENDING_VERIFY_AFTER_MINUTES")
	_ = viper.BindEnv("CORS_FALLBACK_ORIGINS")
	_ = viper.BindEnv("CORS_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("LOG_LEVEL")

	// A missing .env file is fine; anything else is worth a warning.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Warn("failed to read config file; using environment values", zap.Error(err))
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.normalize()
	return
}

func (c *Config) normalize() {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.ServerPort = port
	}
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(c.RedisKeyPrefix), ":")
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = "bookpay"
	}
	c.PaystackSecretKey = strings.TrimSpace(c.PaystackSecretKey)
	c.PaystackWebhookSecret = strings.TrimSpace(c.PaystackWebhookSecret)
	// Paystack signs webhooks with the account secret key unless a dedicated secret is set.
	if c.PaystackWebhookSecret == "" {
		c.PaystackWebhookSecret = c.PaystackSecretKey
	}
	c.PaystackBaseURL = strings.TrimSuffix(strings.TrimSpace(c.PaystackBaseURL), "/")
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "GHS"
	}

	if c.PlatformFeePercent < 0 {
		zap.L().Warn("negative platform fee configured; coercing to zero", zap.Float64("fee_percent", c.PlatformFeePercent))
		c.PlatformFeePercent = 0
	}
	if c.PlatformFeePercent > 100 {
		zap.L().Warn("platform fee too high; capping at 100", zap.Float64("fee_percent", c.PlatformFeePercent))
		c.PlatformFeePercent = 100
	}
	if c.WebhookRateLimitMax <= 0 {
		c.WebhookRateLimitMax = 50
	}
	if c.WebhookRateLimitWindowSeconds <= 0 {
		c.WebhookRateLimitWindowSeconds = 60
	}
	if c.SettlementLeaseSeconds <= 0 {
		c.SettlementLeaseSeconds = 120
	}
	if c.PendingVerifyAfterMinutes <= 0 {
		c.PendingVerifyAfterMinutes = 15
	}
	if c.CORSCacheTTLSeconds <= 0 {
		c.CORSCacheTTLSeconds = 60
	}
}

// MissingSecrets returns the names of required settings that are not configured.
// Requests that depend on them must fail with a server error until they are set.
func (c Config) MissingSecrets() []string {
	var missing []string
	if c.PaystackSecretKey == "" {
		missing = append(missing, "PAYSTACK_SECRET_KEY")
	}
	if c.PaystackWebhookSecret == "" {
		missing = append(missing, "PAYSTACK_WEBHOOK_SECRET")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	return missing
}

// FallbackOrigins returns the origins to allow when the config store has none.
func (c Config) FallbackOrigins() []string {
	raw := strings.TrimSpace(c.CORSFallbackOrigins)
	if raw == "" {
		return append([]string(nil), DefaultFallbackOrigins...)
	}
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSuffix(strings.TrimSpace(part), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return append([]string(nil), DefaultFallbackOrigins...)
	}
	return origins
}

func (c Config) WebhookRateLimitWindow() time.Duration {
	return time.Duration(c.WebhookRateLimitWindowSeconds) * time.Second
}

func (c Config) SettlementLease() time.Duration {
	return time.Duration(c.SettlementLeaseSeconds) * time.Second
}

func (c Config) PendingVerifyAfter() time.Duration {
	return time.Duration(c.PendingVerifyAfterMinutes) * time.Minute
}

func (c Config) CORSCacheTTL() time.Duration {
	return time.Duration(c.CORSCacheTTLSeconds) * time.Second
}
