package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/currency-trends-dashboard/internal/api"
	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/metrics"
	"github.com/dalfonso89/currency-trends-dashboard/internal/platform"
	"github.com/dalfonso89/currency-trends-dashboard/internal/provider"
	"github.com/dalfonso89/currency-trends-dashboard/internal/ratelimit"
	"github.com/dalfonso89/currency-trends-dashboard/internal/service"
	"github.com/dalfonso89/currency-trends-dashboard/internal/session"
	"github.com/dalfonso89/currency-trends-dashboard/internal/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The API key is masked in every log entry from here on
	appLogger := logger.New(cfg.LogLevel, cfg.Provider.APIKey)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing := tracing.Init(cfg.OtelEndpoint, appLogger)
	defer shutdownTracing()

	dictionary, err := currency.LoadCSV(cfg.Dashboard.CurrencyCSVPath)
	if err != nil {
		appLogger.Fatalf("Failed to load currency dictionary: %v", err)
	}
	appLogger.WithField("currencies", dictionary.Len()).Info("Currency dictionary loaded")

	// Initialize services
	m := metrics.New()
	fx := provider.NewCurrencyBeacon(cfg.Provider, appLogger, m)
	sessions := session.NewManager(session.Dependencies{
		Historical: service.NewHistoricalViewModel(fx, dictionary, cfg.Dashboard, appLogger, m),
		Calculator: service.NewCalculatorViewModel(fx, dictionary, cfg.Dashboard, appLogger),
		Dashboard:  cfg.Dashboard,
		Logger:     appLogger,
	}, cfg.Dashboard.SessionTTL, appLogger, m)

	var rateLimiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		rateLimiter = ratelimit.NewLimiter(cfg, appLogger)
	}

	// Initialize HTTP handlers
	handlers, err := api.NewHandlers(api.HandlerConfig{
		Logger:      appLogger,
		Dictionary:  dictionary,
		Sessions:    sessions,
		Metrics:     m,
		RateLimiter: rateLimiter,
	})
	if err != nil {
		appLogger.Fatalf("Failed to set up handlers: %v", err)
	}

	// Setup HTTP server. No WriteTimeout: the calculator stream outlives it.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.SetupRoutes(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Starting dashboard on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()
	<-shutdownCtx.Done()

	appLogger.Info("Shutting down server...")

	sessions.Stop()
	if rateLimiter != nil {
		rateLimiter.Stop()
	}

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}
