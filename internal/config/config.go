package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProviderConfig describes the CurrencyBeacon endpoint set
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DashboardConfig holds the widget defaults and bounds
type DashboardConfig struct {
	CurrencyCSVPath   string
	HistoryWindowDays int
	DefaultWindowDays int
	DefaultBase       string
	DefaultTarget     string
	ProgressSteps     int
	ProgressDelay     time.Duration
	SessionTTL        time.Duration
}

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string

	Provider  ProviderConfig
	Dashboard DashboardConfig

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int

	OtelEndpoint string
}

const (
	apiKeyFileKey = "api_config.api_key"
	apiKeyEnvKey  = "CURRENCYBEACON_API_KEY"
)

// Load loads configuration from the environment, an optional .env file and
// the key-value config file that carries the provider API key.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	apiKey, err := loadAPIKey(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:     v.GetString("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Provider: ProviderConfig{
			BaseURL:      strings.TrimRight(v.GetString("CURRENCYBEACON_BASE_URL"), "/"),
			APIKey:       apiKey,
			Timeout:      v.GetDuration("PROVIDER_TIMEOUT"),
			RetryCount:   v.GetInt("PROVIDER_RETRY_COUNT"),
			RetryWaitMin: v.GetDuration("PROVIDER_RETRY_WAIT_MIN"),
			RetryWaitMax: v.GetDuration("PROVIDER_RETRY_WAIT_MAX"),
		},
		Dashboard: DashboardConfig{
			CurrencyCSVPath:   v.GetString("CURRENCY_CSV_PATH"),
			HistoryWindowDays: v.GetInt("HISTORY_WINDOW_DAYS"),
			DefaultWindowDays: v.GetInt("DEFAULT_WINDOW_DAYS"),
			DefaultBase:       strings.ToUpper(v.GetString("DEFAULT_BASE")),
			DefaultTarget:     strings.ToUpper(v.GetString("DEFAULT_TARGET")),
			ProgressSteps:     v.GetInt("PROGRESS_STEPS"),
			ProgressDelay:     v.GetDuration("PROGRESS_DELAY"),
			SessionTTL:        v.GetDuration("SESSION_TTL"),
		},

		RateLimitEnabled:  v.GetBool("RATE_LIMIT_ENABLED"),
		RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
		RateLimitWindow:   time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		RateLimitBurst:    v.GetInt("RATE_LIMIT_BURST"),

		OtelEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8081")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CONFIG_FILE", "configuration.conf")

	v.SetDefault("CURRENCYBEACON_BASE_URL", "https://api.currencybeacon.com/v1")
	v.SetDefault("PROVIDER_TIMEOUT", "15s")
	v.SetDefault("PROVIDER_RETRY_COUNT", 2)
	v.SetDefault("PROVIDER_RETRY_WAIT_MIN", "250ms")
	v.SetDefault("PROVIDER_RETRY_WAIT_MAX", "2s")

	v.SetDefault("CURRENCY_CSV_PATH", "data/currency_shortcodes.csv")
	v.SetDefault("HISTORY_WINDOW_DAYS", 200)
	v.SetDefault("DEFAULT_WINDOW_DAYS", 30)
	v.SetDefault("DEFAULT_BASE", "USD")
	v.SetDefault("DEFAULT_TARGET", "EUR")
	v.SetDefault("PROGRESS_STEPS", 14)
	v.SetDefault("PROGRESS_DELAY", "100ms")
	v.SetDefault("SESSION_TTL", "30m")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

// loadAPIKey prefers the environment and falls back to the [api_config]
// section of the config file. A missing file is not an error; a missing key is
// reported without ever echoing a value.
func loadAPIKey(v *viper.Viper) (string, error) {
	if key := strings.TrimSpace(os.Getenv(apiKeyEnvKey)); key != "" {
		return key, nil
	}

	path := v.GetString("CONFIG_FILE")
	if path == "" {
		return "", nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	fileConfig := viper.New()
	fileConfig.SetConfigFile(path)
	fileConfig.SetConfigType("ini")
	if err := fileConfig.ReadInConfig(); err != nil {
		return "", fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return strings.TrimSpace(fileConfig.GetString(apiKeyFileKey)), nil
}

// HistoryBounds returns the inclusive date window the widgets accept.
func (dashboard DashboardConfig) HistoryBounds(now time.Time) (time.Time, time.Time) {
	today := truncateToDay(now)
	return today.AddDate(0, 0, -dashboard.HistoryWindowDays), today
}

// DefaultRange returns the initial date range shown to a new session.
func (dashboard DashboardConfig) DefaultRange(now time.Time) (time.Time, time.Time) {
	today := truncateToDay(now)
	return today.AddDate(0, 0, -dashboard.DefaultWindowDays), today
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
