package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Gateway     GatewayConfig  `mapstructure:"gateway"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Workers     WorkersConfig  `mapstructure:"workers"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

// RedisConfig holds redis settings for the distribution lock and replay counters
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GatewayConfig holds the payment gateway callback settings
type GatewayConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// LedgerConfig holds the business parameters of the ledger engine
type LedgerConfig struct {
	ReferralBonusRate   float64 `mapstructure:"referral_bonus_rate"`
	AdminProfitShare    float64 `mapstructure:"admin_profit_share"`
	TaxThreshold        float64 `mapstructure:"tax_threshold"`
	TaxRate             float64 `mapstructure:"tax_rate"`
	DistributionLockTTL int     `mapstructure:"distribution_lock_ttl"`
}

// ReferralRate returns the referral bonus rate as a decimal
func (l LedgerConfig) ReferralRate() decimal.Decimal {
	return decimal.NewFromFloat(l.ReferralBonusRate)
}

// AdminShare returns the platform profit share as a decimal
func (l LedgerConfig) AdminShare() decimal.Decimal {
	return decimal.NewFromFloat(l.AdminProfitShare)
}

// TaxThresholdAmount returns the withholding threshold as a decimal
func (l LedgerConfig) TaxThresholdAmount() decimal.Decimal {
	return decimal.NewFromFloat(l.TaxThreshold)
}

// TaxRateAmount returns the withholding rate as a decimal
func (l LedgerConfig) TaxRateAmount() decimal.Decimal {
	return decimal.NewFromFloat(l.TaxRate)
}

// WorkersConfig holds background worker settings
type WorkersConfig struct {
	OutboxSchedule    string `mapstructure:"outbox_schedule"`
	OutboxBatchSize   int    `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts int    `mapstructure:"outbox_max_attempts"`
}

// Load reads configuration from configs/config.yaml with env overrides
func Load() (*Config, error) {
	// Load .env if present; missing file is fine
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "poolvest")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ledger.referral_bonus_rate", 0.05)
	viper.SetDefault("ledger.admin_profit_share", 0.20)
	viper.SetDefault("ledger.tax_threshold", 100.0)
	viper.SetDefault("ledger.tax_rate", 0.10)
	viper.SetDefault("ledger.distribution_lock_ttl", 600)

	viper.SetDefault("workers.outbox_schedule", "@every 15s")
	viper.SetDefault("workers.outbox_batch_size", 50)
	viper.SetDefault("workers.outbox_max_attempts", 5)
}

func validate(cfg *Config) error {
	if cfg.Gateway.WebhookSecret == "" && cfg.Environment == "production" {
		return fmt.Errorf("gateway.webhook_secret is required in production")
	}
	if cfg.Ledger.AdminProfitShare < 0 || cfg.Ledger.AdminProfitShare >= 1 {
		return fmt.Errorf("ledger.admin_profit_share must be in [0,1)")
	}
	if cfg.Ledger.TaxRate < 0 || cfg.Ledger.TaxRate >= 1 {
		return fmt.Errorf("ledger.tax_rate must be in [0,1)")
	}
	if cfg.Ledger.ReferralBonusRate < 0 || cfg.Ledger.ReferralBonusRate >= 1 {
		return fmt.Errorf("ledger.referral_bonus_rate must be in [0,1)")
	}
	return nil
}
