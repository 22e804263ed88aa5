package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	AI       AIConfig       `mapstructure:"ai"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds bearer-token verification configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// AIConfig holds LLM provider configuration.
type AIConfig struct {
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url"`
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string        `mapstructure:"anthropic_base_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
}

// ChatConfig holds chat turn configuration.
type ChatConfig struct {
	MinResponseAllowance int64  `mapstructure:"min_response_allowance"`
	MaxTokens            int    `mapstructure:"max_tokens"`
	HistoryLimit         int    `mapstructure:"history_limit"`
	FallbackMessage      string `mapstructure:"fallback_message"`
	DefaultModel         string `mapstructure:"default_model"`
}

// PricingConfig holds token pricing configuration.
type PricingConfig struct {
	WelcomeTokens   int64   `mapstructure:"welcome_tokens"`
	TokenExpiryDays int     `mapstructure:"token_expiry_days"`
	USDToBDT        float64 `mapstructure:"usd_to_bdt"`
}

// PaymentConfig holds payment gateway configuration.
type PaymentConfig struct {
	Gateway      string `mapstructure:"gateway"`
	StripeAPIKey string `mapstructure:"stripe_api_key"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/chatforge")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("CHATFORGE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("CHATFORGE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("CHATFORGE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("CHATFORGE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("CHATFORGE_OPENAI_API_KEY"); key != "" {
		cfg.AI.OpenAIAPIKey = key
	}
	if key := os.Getenv("CHATFORGE_ANTHROPIC_API_KEY"); key != "" {
		cfg.AI.AnthropicAPIKey = key
	}
	if key := os.Getenv("CHATFORGE_STRIPE_API_KEY"); key != "" {
		cfg.Payment.StripeAPIKey = key
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "chatforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.issuer", "chatforge")

	// AI defaults
	v.SetDefault("ai.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.anthropic_base_url", "https://api.anthropic.com/v1")
	v.SetDefault("ai.request_timeout", 120*time.Second)
	v.SetDefault("ai.failure_threshold", 5)
	v.SetDefault("ai.circuit_timeout", 60*time.Second)

	// Chat defaults
	v.SetDefault("chat.min_response_allowance", 100)
	v.SetDefault("chat.max_tokens", 4096)
	v.SetDefault("chat.history_limit", 20)
	v.SetDefault("chat.default_model", "gpt-4o-mini")

	// Pricing defaults
	v.SetDefault("pricing.welcome_tokens", 50000)
	v.SetDefault("pricing.token_expiry_days", 30)
	v.SetDefault("pricing.usd_to_bdt", 120.0)

	// Payment defaults
	v.SetDefault("payment.gateway", "simulated")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
