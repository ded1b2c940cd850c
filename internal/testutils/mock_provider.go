package testutils

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
)

// MockFxProvider is a testify mock of provider.FxProvider
type MockFxProvider struct {
	mock.Mock
}

func (m *MockFxProvider) FetchTimeseries(ctx context.Context, base string, targets []string, start, end time.Time) ([]models.QuotePoint, error) {
	args := m.Called(ctx, base, targets, start, end)
	points, _ := args.Get(0).([]models.QuotePoint)
	return points, args.Error(1)
}

func (m *MockFxProvider) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (models.ConvertResponse, error) {
	args := m.Called(ctx, from, to, amount)
	response, _ := args.Get(0).(models.ConvertResponse)
	return response, args.Error(1)
}

// Quote builds a QuotePoint from a date string and a decimal literal
func Quote(date, currency, rate string) models.QuotePoint {
	parsed, err := time.Parse(models.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return models.QuotePoint{Date: parsed, Currency: currency, Rate: decimal.RequireFromString(rate)}
}
