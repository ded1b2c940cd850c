package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/metrics"
	"github.com/dalfonso89/currency-trends-dashboard/internal/middleware"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
	"github.com/dalfonso89/currency-trends-dashboard/internal/ratelimit"
	"github.com/dalfonso89/currency-trends-dashboard/internal/session"
)

// Version is reported by the health check
const Version = "1.0.0"

// HandlerConfig holds the collaborators the handlers need.
// Metrics and RateLimiter may be nil.
type HandlerConfig struct {
	Logger      *logger.Logger
	Dictionary  *currency.Dictionary
	Sessions    *session.Manager
	Metrics     *metrics.Metrics
	RateLimiter *ratelimit.Limiter
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger      *logger.Logger
	dictionary  *currency.Dictionary
	sessions    *session.Manager
	metrics     *metrics.Metrics
	rateLimiter *ratelimit.Limiter
	startTime   time.Time
}

// NewHandlers creates a new handlers instance and registers the binding validators
func NewHandlers(handlerConfig HandlerConfig) (*Handlers, error) {
	if err := registerValidators(handlerConfig.Dictionary); err != nil {
		return nil, err
	}
	return &Handlers{
		logger:      handlerConfig.Logger,
		dictionary:  handlerConfig.Dictionary,
		sessions:    handlerConfig.Sessions,
		metrics:     handlerConfig.Metrics,
		rateLimiter: handlerConfig.RateLimiter,
		startTime:   time.Now(),
	}, nil
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics(handlers.metrics))

	if handlers.rateLimiter != nil {
		router.Use(middleware.RateLimit(handlers.rateLimiter, handlers.logger))
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(handlers.metrics.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/currencies", handlers.ListCurrencies)
		apiV1.GET("/about", handlers.About)

		apiV1.POST("/sessions", handlers.CreateSession)

		sessionRoutes := apiV1.Group("/sessions/:id", handlers.loadSession)
		{
			sessionRoutes.GET("", handlers.GetSession)
			sessionRoutes.DELETE("", handlers.DeleteSession)

			sessionRoutes.PUT("/historical/inputs", handlers.PutHistoricalInputs)
			sessionRoutes.PUT("/historical/selection/:view", handlers.PutSelection)
			sessionRoutes.POST("/historical/refresh", handlers.RefreshHistorical)
			sessionRoutes.GET("/historical/table", handlers.GetTable)
			sessionRoutes.GET("/historical/plot", handlers.GetPlot)

			sessionRoutes.PUT("/calculator/inputs", handlers.PutCalculatorInputs)
			sessionRoutes.POST("/calculator/compute", handlers.Compute)
		}
	}

	return router
}

// HealthCheck handles health check requests
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	healthCheckResponse := models.HealthCheck{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    Version,
		Uptime:     time.Since(handlers.startTime).String(),
		Currencies: handlers.dictionary.Len(),
		Sessions:   handlers.sessions.Len(),
	}

	context.JSON(http.StatusOK, healthCheckResponse)
}

// ListCurrencies returns the selector options as {label, code} pairs
func (handlers *Handlers) ListCurrencies(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{"currencies": handlers.dictionary.Options()})
}

// About returns the about page as markdown
func (handlers *Handlers) About(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{"markdown": aboutMarkdown})
}

// CreateSession starts a session with the default inputs
func (handlers *Handlers) CreateSession(context *gin.Context) {
	dashboardSession := handlers.sessions.Create()
	handlers.writeState(context, http.StatusCreated, dashboardSession)
}

// GetSession returns the session's inputs, effective selections and date bounds
func (handlers *Handlers) GetSession(context *gin.Context) {
	handlers.writeState(context, http.StatusOK, currentSession(context))
}

// DeleteSession ends the session
func (handlers *Handlers) DeleteSession(context *gin.Context) {
	handlers.sessions.Delete(currentSession(context).ID())
	context.Status(http.StatusNoContent)
}

// PutHistoricalInputs replaces base, targets and date range
func (handlers *Handlers) PutHistoricalInputs(context *gin.Context) {
	var request historicalInputsRequest
	if bindError := context.ShouldBindJSON(&request); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid historical inputs", bindError.Error())
		return
	}

	inputs, resolveError := request.toInputs(handlers.dictionary)
	if resolveError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid historical inputs", resolveError.Error())
		return
	}

	dashboardSession := currentSession(context)
	dashboardSession.SetHistoricalInputs(inputs)
	handlers.writeState(context, http.StatusOK, dashboardSession)
}

// PutSelection sets the table or plot selection
func (handlers *Handlers) PutSelection(context *gin.Context) {
	view, viewError := session.ParseView(context.Param("view"))
	if viewError != nil {
		handlers.writeErrorResponse(context, http.StatusNotFound, "Unknown view", viewError.Error())
		return
	}

	var request selectionRequest
	if bindError := context.ShouldBindJSON(&request); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid selection", bindError.Error())
		return
	}
	codes, resolveError := request.toCodes(handlers.dictionary)
	if resolveError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid selection", resolveError.Error())
		return
	}

	dashboardSession := currentSession(context)
	dashboardSession.SetSelection(view, codes)
	handlers.writeState(context, http.StatusOK, dashboardSession)
}

// RefreshHistorical drops the memoized frame so the next read fetches again
func (handlers *Handlers) RefreshHistorical(context *gin.Context) {
	currentSession(context).Refresh()
	context.Status(http.StatusNoContent)
}

// GetTable returns the table rows, or an empty table with a banner when the provider fails
func (handlers *Handlers) GetTable(context *gin.Context) {
	table, tableError := currentSession(context).Table(context.Request.Context())
	if tableError != nil {
		handlers.writeCancelled(context, tableError)
		return
	}
	context.JSON(http.StatusOK, table)
}

// GetPlot returns the plot spec, or an empty plot with a banner when the provider fails
func (handlers *Handlers) GetPlot(context *gin.Context) {
	plot, plotError := currentSession(context).Plot(context.Request.Context())
	if plotError != nil {
		handlers.writeCancelled(context, plotError)
		return
	}
	context.JSON(http.StatusOK, plot)
}

// PutCalculatorInputs stores the calculator widgets without computing
func (handlers *Handlers) PutCalculatorInputs(context *gin.Context) {
	var request calculatorInputsRequest
	if bindError := context.ShouldBindJSON(&request); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid calculator inputs", bindError.Error())
		return
	}
	inputs, resolveError := request.toInputs(handlers.dictionary)
	if resolveError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid calculator inputs", resolveError.Error())
		return
	}

	dashboardSession := currentSession(context)
	dashboardSession.SetCalculatorInputs(inputs)
	handlers.writeState(context, http.StatusOK, dashboardSession)
}

// Compute fires the calculator action. With ?stream=true the progress
// ticks and the result are sent as server-sent events.
func (handlers *Handlers) Compute(context *gin.Context) {
	dashboardSession := currentSession(context)
	stream, _ := strconv.ParseBool(context.Query("stream"))

	if !stream {
		result := dashboardSession.Compute(context.Request.Context(), nil)
		context.JSON(http.StatusOK, result)
		return
	}

	context.Header("Content-Type", "text/event-stream")
	context.Header("Cache-Control", "no-cache")
	context.Header("Connection", "keep-alive")
	context.Status(http.StatusOK)

	result := dashboardSession.Compute(context.Request.Context(), func(step models.ProgressStep) {
		context.SSEvent("progress", step)
		context.Writer.Flush()
	})
	context.SSEvent("result", result)
	context.Writer.Flush()
}

// loadSession resolves :id and aborts with 404 for unknown sessions
func (handlers *Handlers) loadSession(context *gin.Context) {
	dashboardSession, found := handlers.sessions.Get(context.Param("id"))
	if !found {
		handlers.writeErrorResponse(context, http.StatusNotFound, "Session not found", "create a session with POST /api/v1/sessions")
		context.Abort()
		return
	}
	context.Set(sessionKey, dashboardSession)
	context.Next()
}

const sessionKey = "session"

func currentSession(context *gin.Context) *session.Session {
	return context.MustGet(sessionKey).(*session.Session)
}

func (handlers *Handlers) writeState(context *gin.Context, statusCode int, dashboardSession *session.Session) {
	state, stateError := dashboardSession.State(context.Request.Context())
	if stateError != nil {
		handlers.writeCancelled(context, stateError)
		return
	}
	context.JSON(statusCode, state)
}

// writeCancelled answers a request whose own context ended before the output was ready
func (handlers *Handlers) writeCancelled(context *gin.Context, err error) {
	handlers.logger.WithField("error", err).Debug("Request ended before output was ready")
	handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "Request cancelled", err.Error())
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	errorResponse := models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	}

	context.JSON(statusCode, errorResponse)
}
