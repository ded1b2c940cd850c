package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
)

// responseField extracts the top-level "response" member every endpoint wraps its payload in
func responseField(endpoint string, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &apperrors.DecodeError{Endpoint: endpoint, Reason: "body is not valid JSON"}
	}
	response := gjson.GetBytes(body, "response")
	if !response.Exists() {
		return gjson.Result{}, &apperrors.DecodeError{Endpoint: endpoint, Reason: "missing response field"}
	}
	return response, nil
}

// parseTimeseries flattens {date: {currency: rate}} into one point per rate.
// Rates keep the provider's precision.
func parseTimeseries(body []byte) ([]models.QuotePoint, error) {
	response, err := responseField(EndpointTimeseries, body)
	if err != nil {
		return nil, err
	}

	// an empty window comes back as []
	if response.IsArray() && len(response.Array()) == 0 {
		return []models.QuotePoint{}, nil
	}
	if !response.IsObject() {
		return nil, &apperrors.DecodeError{Endpoint: EndpointTimeseries, Reason: "response is not an object keyed by date"}
	}

	var (
		points   []models.QuotePoint
		parseErr error
	)
	response.ForEach(func(dateKey, currencies gjson.Result) bool {
		date, err := time.Parse(models.DateLayout, dateKey.String())
		if err != nil {
			parseErr = &apperrors.DecodeError{Endpoint: EndpointTimeseries, Reason: fmt.Sprintf("invalid date key %q", dateKey.String())}
			return false
		}
		if !currencies.IsObject() {
			parseErr = &apperrors.DecodeError{Endpoint: EndpointTimeseries, Reason: fmt.Sprintf("rates for %s are not an object", dateKey.String())}
			return false
		}

		currencies.ForEach(func(code, rate gjson.Result) bool {
			value, err := numeric(rate)
			if err != nil {
				parseErr = &apperrors.DecodeError{Endpoint: EndpointTimeseries, Reason: fmt.Sprintf("rate %s on %s: %v", code.String(), dateKey.String(), err)}
				return false
			}
			points = append(points, models.QuotePoint{
				Date:     date,
				Currency: strings.ToUpper(code.String()),
				Rate:     value,
			})
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return points, nil
}

// parseConvert reads response.value and response.amount; both must be numbers
func parseConvert(body []byte) (models.ConvertResponse, error) {
	response, err := responseField(EndpointConvert, body)
	if err != nil {
		return models.ConvertResponse{}, err
	}
	if !response.IsObject() {
		return models.ConvertResponse{}, &apperrors.DecodeError{Endpoint: EndpointConvert, Reason: "response is not an object"}
	}

	value, err := numeric(response.Get("value"))
	if err != nil {
		return models.ConvertResponse{}, &apperrors.DecodeError{Endpoint: EndpointConvert, Reason: "value: " + err.Error()}
	}
	amount, err := numeric(response.Get("amount"))
	if err != nil {
		return models.ConvertResponse{}, &apperrors.DecodeError{Endpoint: EndpointConvert, Reason: "amount: " + err.Error()}
	}
	return models.ConvertResponse{Value: value, EchoedAmount: amount}, nil
}

// parseCurrencies reads the [{name, short_code}] catalogue
func parseCurrencies(body []byte) ([]models.CurrencyEntry, error) {
	response, err := responseField(EndpointCurrencies, body)
	if err != nil {
		return nil, err
	}
	if !response.IsArray() {
		return nil, &apperrors.DecodeError{Endpoint: EndpointCurrencies, Reason: "response is not an array"}
	}

	items := response.Array()
	entries := make([]models.CurrencyEntry, 0, len(items))
	for i, item := range items {
		name := item.Get("name")
		code := item.Get("short_code")
		if name.Type != gjson.String || code.Type != gjson.String {
			return nil, &apperrors.DecodeError{Endpoint: EndpointCurrencies, Reason: fmt.Sprintf("entry %d lacks name or short_code", i)}
		}
		entries = append(entries, models.CurrencyEntry{Name: name.String(), ShortCode: code.String()})
	}
	return entries, nil
}

func numeric(result gjson.Result) (decimal.Decimal, error) {
	if !result.Exists() {
		return decimal.Decimal{}, errors.New("missing")
	}
	if result.Type != gjson.Number {
		return decimal.Decimal{}, fmt.Errorf("not a number: %s", result.Raw)
	}
	return decimal.NewFromString(result.Raw)
}
