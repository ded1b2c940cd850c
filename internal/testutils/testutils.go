package testutils

import (
	"time"

	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
)

// TestAPIKey is the key MockConfig hands the provider
const TestAPIKey = "test-api-key-0123456789"

// MockLogger creates a quiet logger for testing
func MockLogger() *logger.Logger {
	return logger.Discard()
}

// MockConfig creates a configuration pointing at baseURL with no retries and fast progress
func MockConfig(baseURL string) *config.Config {
	return &config.Config{
		Port:     "8081",
		LogLevel: "error",

		Provider: config.ProviderConfig{
			BaseURL:      baseURL,
			APIKey:       TestAPIKey,
			Timeout:      2 * time.Second,
			RetryCount:   0,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: 5 * time.Millisecond,
		},
		Dashboard: config.DashboardConfig{
			HistoryWindowDays: 200,
			DefaultWindowDays: 30,
			DefaultBase:       "USD",
			DefaultTarget:     "EUR",
			ProgressSteps:     14,
			ProgressDelay:     0,
			SessionTTL:        time.Minute,
		},

		RateLimitEnabled:  false,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RateLimitBurst:    10,
	}
}

// MockDictionary returns a dictionary with the currencies the mock server knows
func MockDictionary() *currency.Dictionary {
	dictionary, err := currency.New([]models.CurrencyEntry{
		{Name: "US Dollar", ShortCode: "USD"},
		{Name: "Euro", ShortCode: "EUR"},
		{Name: "Japanese Yen", ShortCode: "JPY"},
		{Name: "British Pound Sterling", ShortCode: "GBP"},
	})
	if err != nil {
		panic(err)
	}
	return dictionary
}

// Day returns midnight UTC for the given date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FixedClock returns a clock func pinned to t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
