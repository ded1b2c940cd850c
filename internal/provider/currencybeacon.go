package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/metrics"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
	"github.com/dalfonso89/currency-trends-dashboard/internal/tracing"
)

// Endpoint names, also used as metric labels
const (
	EndpointTimeseries = "timeseries"
	EndpointConvert    = "convert"
	EndpointCurrencies = "currencies"
)

const maxLoggedBody = 2048

// FxProvider is the typed surface the view models depend on
type FxProvider interface {
	FetchTimeseries(ctx context.Context, base string, targets []string, start, end time.Time) ([]models.QuotePoint, error)
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (models.ConvertResponse, error)
}

// CurrencyBeacon implements FxProvider against api.currencybeacon.com
type CurrencyBeacon struct {
	configuration config.ProviderConfig
	logger        *logger.Logger
	metrics       *metrics.Metrics
	httpClient    *http.Client
	redactor      *logger.RedactHook
}

// NewCurrencyBeacon creates a new CurrencyBeacon client. metrics may be nil.
func NewCurrencyBeacon(configuration config.ProviderConfig, log *logger.Logger, m *metrics.Metrics) *CurrencyBeacon {
	provider := &CurrencyBeacon{
		configuration: configuration,
		logger:        log,
		metrics:       m,
		redactor:      logger.NewRedactHook(configuration.APIKey),
	}
	provider.httpClient = provider.newHTTPClient()
	return provider
}

func (provider *CurrencyBeacon) newHTTPClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = provider.configuration.RetryCount
	if provider.configuration.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = provider.configuration.RetryWaitMin
	}
	if provider.configuration.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = provider.configuration.RetryWaitMax
	}
	retryClient.HTTPClient.Timeout = provider.configuration.Timeout
	retryClient.Logger = &retryLogger{entry: provider.logger.WithField("component", "fxprovider"), redactor: provider.redactor}
	// hand the last response back so a 5xx stays a ProviderError after retries
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return retryClient.StandardClient()
}

// FetchTimeseries fetches daily rates for targets against base over [start, end].
func (provider *CurrencyBeacon) FetchTimeseries(ctx context.Context, base string, targets []string, start, end time.Time) ([]models.QuotePoint, error) {
	switch {
	case base == "":
		return nil, &apperrors.InputValidationError{Field: "base", Reason: "is required"}
	case len(targets) == 0:
		return nil, &apperrors.InputValidationError{Field: "targets", Reason: "at least one target is required"}
	case end.Before(start):
		return nil, &apperrors.InputValidationError{Field: "date range", Reason: "end date is before start date"}
	}

	params := url.Values{}
	params.Set("base", base)
	params.Set("start_date", start.Format(models.DateLayout))
	params.Set("end_date", end.Format(models.DateLayout))
	params.Set("symbols", strings.Join(targets, ","))

	var points []models.QuotePoint
	err := provider.call(ctx, EndpointTimeseries, params, func(body []byte) (decodeErr error) {
		points, decodeErr = parseTimeseries(body)
		return decodeErr
	})
	if err != nil {
		return nil, err
	}

	provider.logger.WithFields(logrus.Fields{
		"base":    base,
		"symbols": len(targets),
		"points":  len(points),
	}).Debug("Fetched timeseries")
	return points, nil
}

// Convert converts amount from one currency to another at the latest rate.
func (provider *CurrencyBeacon) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (models.ConvertResponse, error) {
	if from == "" || to == "" {
		return models.ConvertResponse{}, &apperrors.InputValidationError{Field: "currency", Reason: "from and to are required"}
	}

	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	params.Set("amount", amount.String())

	var response models.ConvertResponse
	err := provider.call(ctx, EndpointConvert, params, func(body []byte) (decodeErr error) {
		response, decodeErr = parseConvert(body)
		return decodeErr
	})
	return response, err
}

// ListCurrencies returns the provider's currency catalogue of the given type (e.g. "fiat").
func (provider *CurrencyBeacon) ListCurrencies(ctx context.Context, currencyType string) ([]models.CurrencyEntry, error) {
	params := url.Values{}
	if currencyType != "" {
		params.Set("type", currencyType)
	}

	var entries []models.CurrencyEntry
	err := provider.call(ctx, EndpointCurrencies, params, func(body []byte) (decodeErr error) {
		entries, decodeErr = parseCurrencies(body)
		return decodeErr
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// buildURL constructs the endpoint URL including the API key
func (provider *CurrencyBeacon) buildURL(endpoint string, params url.Values) string {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("api_key", provider.configuration.APIKey)
	return provider.configuration.BaseURL + "/" + endpoint + "?" + query.Encode()
}

// call performs the request, hands a 2xx body to decode and classifies
// failures. Every call is timed, traced and counted once.
func (provider *CurrencyBeacon) call(ctx context.Context, endpoint string, params url.Values, decode func(body []byte) error) error {
	ctx, span := tracing.Tracer().Start(ctx, "fxprovider."+endpoint)
	defer span.End()
	span.SetAttributes(attribute.String("fx.endpoint", endpoint))

	if provider.configuration.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, provider.configuration.Timeout)
		defer cancel()
	}

	started := time.Now()
	body, err := provider.roundTrip(ctx, endpoint, params)
	if err == nil {
		if err = decode(body); err != nil {
			provider.logDecodeFailure(endpoint, body, err)
		}
	}
	provider.metrics.ObserveProviderCall(endpoint, apperrors.Kind(err), time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.Kind(err))
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (provider *CurrencyBeacon) roundTrip(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.buildURL(endpoint, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %s", endpoint, provider.redactor.Redact(err.Error()))
	}
	request.Header.Set("Accept", "application/json")

	response, err := provider.httpClient.Do(request)
	if err != nil {
		return nil, provider.transportError(endpoint, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, provider.transportError(endpoint, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		provider.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   response.StatusCode,
		}).Warn("FX provider returned non-2xx status")
		return nil, &apperrors.ProviderError{Endpoint: endpoint, Status: response.StatusCode}
	}
	return body, nil
}

// transportError strips the request URL (which carries the API key) from err.
func (provider *CurrencyBeacon) transportError(endpoint string, err error) error {
	cause := err
	var urlError *url.Error
	if errors.As(err, &urlError) {
		cause = urlError.Err
	}

	timeout := errors.Is(err, context.DeadlineExceeded)
	var netError net.Error
	if errors.As(err, &netError) && netError.Timeout() {
		timeout = true
	}

	transportError := &apperrors.TransportError{
		Endpoint: endpoint,
		Timeout:  timeout,
		Message:  provider.redactor.Redact(cause.Error()),
		Cause:    cause,
	}
	provider.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"timeout":  timeout,
	}).Warn(transportError.Error())
	return transportError
}

func (provider *CurrencyBeacon) logDecodeFailure(endpoint string, body []byte, err error) {
	raw := string(body)
	if len(raw) > maxLoggedBody {
		raw = raw[:maxLoggedBody] + "..."
	}
	provider.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"body":     provider.redactor.Redact(raw),
	}).Warn(err.Error())
}

// retryLogger adapts logrus to retryablehttp.LeveledLogger, redacting every value.
type retryLogger struct {
	entry    *logrus.Entry
	redactor *logger.RedactHook
}

func (l *retryLogger) fields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		fields[key] = l.redactor.Redact(fmt.Sprint(keysAndValues[i+1]))
	}
	return fields
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(l.fields(keysAndValues)).Error(l.redactor.Redact(msg))
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(l.fields(keysAndValues)).Debug(l.redactor.Redact(msg))
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(l.fields(keysAndValues)).Debug(l.redactor.Redact(msg))
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(l.fields(keysAndValues)).Warn(l.redactor.Redact(msg))
}
