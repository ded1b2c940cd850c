// Command extract rebuilds the currency dictionary CSV from the provider's
// currencies endpoint.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		color.Red("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	var (
		output       string
		currencyType string
		timeout      time.Duration
	)
	flag.StringVar(&output, "out", cfg.Dashboard.CurrencyCSVPath, "CSV file to write")
	flag.StringVar(&currencyType, "type", "fiat", "Currency type to request")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline")
	flag.Parse()

	log := logger.New(cfg.LogLevel, cfg.Provider.APIKey)
	fx := provider.NewCurrencyBeacon(cfg.Provider, log, nil)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entries, err := fx.ListCurrencies(ctx, currencyType)
	if err != nil {
		color.Red("Failed to list currencies: %v", err)
		os.Exit(1)
	}

	// Refuse to replace a good dictionary with one the dashboard cannot load
	if _, err := currency.New(entries); err != nil {
		color.Red("Provider returned an unusable currency list: %v", err)
		os.Exit(1)
	}

	if err := writeAtomically(output, func(file *os.File) error {
		return currency.WriteCSV(file, entries)
	}); err != nil {
		color.Red("Failed to write %s: %v", output, err)
		os.Exit(1)
	}

	color.Green("Wrote %d %s currencies to %s", len(entries), currencyType, output)
}

func writeAtomically(path string, write func(file *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".currencies-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
