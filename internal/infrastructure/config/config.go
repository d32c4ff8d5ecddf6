package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Backend     BackendConfig
	Store       StoreConfig
	Catalog     CatalogConfig
	IAP         IAPConfig
	Identity    IdentityConfig
	Sentry      SentryConfig
	Metrics     MetricsConfig
	Stub        StubConfig
}

// BackendConfig holds the remote subscription API configuration
type BackendConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// StoreConfig holds platform commerce layer configuration
type StoreConfig struct {
	// Platform is "ios" or "android"; on ios self-service cancellation goes
	// through the OS subscription management surface.
	Platform string
	// SettleDelay is how long to wait between catalog fetch attempts while
	// the store connection settles after Connect.
	SettleDelay time.Duration
	// CatalogAttempts bounds catalog fetch retries during initialization.
	CatalogAttempts int
}

// SKUOption is one purchasable subscription, injected rather than compiled in
// so fake catalogs are easy to stand up in tests.
type SKUOption struct {
	SKU    string
	Period entity.BillingPeriod
}

// CatalogConfig holds the subscription SKU list
type CatalogConfig struct {
	Options []SKUOption `mapstructure:"skus"`
}

// IAPConfig holds receipt validation fallback configuration
type IAPConfig struct {
	AppleSharedSecret        string
	GoogleServiceAccountJSON string
	Production               bool
}

// IdentityConfig holds auth identity provider configuration
type IdentityConfig struct {
	FirebaseCredentialsFile string
	// StaticUserID forces a fixed identity; sandbox and tests only.
	StaticUserID string
}

// SentryConfig holds Sentry configuration
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// MetricsConfig holds the prometheus listener configuration
type MetricsConfig struct {
	Addr string
}

// StubConfig holds the stub subscription API server configuration
type StubConfig struct {
	Port      int
	JWTSecret string
}

// SKUs returns the configured SKU identifiers in catalog order.
func (c CatalogConfig) SKUs() []string {
	skus := make([]string, 0, len(c.Options))
	for _, opt := range c.Options {
		skus = append(skus, opt.SKU)
	}
	return skus
}

// Load loads configuration from environment variables and an optional .env
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// .env file is optional; env vars are enough in production
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	// Backend defaults
	viper.SetDefault("backend.baseurl", "https://smart-ai-tutor.com/api")
	viper.SetDefault("backend.timeout", 30*time.Second)
	viper.SetDefault("backend.maxretries", 3)

	// Store defaults
	viper.SetDefault("store.platform", "ios")
	viper.SetDefault("store.settledelay", time.Second)
	viper.SetDefault("store.catalogattempts", 3)

	// Catalog defaults: the shipped subscription products
	viper.SetDefault("catalog.skus", []map[string]string{
		{"sku": "com.neobile.smarttutor.monthly", "period": "month"},
		{"sku": "com.neobile.smarttutor.yearly", "period": "year"},
	})

	// Metrics defaults
	viper.SetDefault("metrics.addr", ":9091")

	// Stub server defaults
	viper.SetDefault("stub.port", 8080)
}

func validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASEURL is required")
	}
	if len(cfg.Catalog.Options) == 0 {
		return fmt.Errorf("at least one catalog SKU is required")
	}
	if cfg.Store.Platform != "ios" && cfg.Store.Platform != "android" {
		return fmt.Errorf("STORE_PLATFORM must be ios or android, got %q", cfg.Store.Platform)
	}
	return nil
}
