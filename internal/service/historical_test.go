package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
	"github.com/dalfonso89/currency-trends-dashboard/internal/provider"
	"github.com/dalfonso89/currency-trends-dashboard/internal/testutils"
)

var today = testutils.Day(2024, 5, 20)

func newViewModel(fx provider.FxProvider) *HistoricalViewModel {
	cfg := testutils.MockConfig("")
	viewModel := NewHistoricalViewModel(fx, testutils.MockDictionary(), cfg.Dashboard, testutils.MockLogger(), nil)
	viewModel.SetClock(testutils.FixedClock(today))
	return viewModel
}

func newBeaconViewModel(t *testing.T) (*HistoricalViewModel, *testutils.MockCurrencyBeacon) {
	t.Helper()
	mockServer := testutils.NewMockCurrencyBeacon()
	t.Cleanup(mockServer.Close)
	cfg := testutils.MockConfig(mockServer.URL())
	fx := provider.NewCurrencyBeacon(cfg.Provider, testutils.MockLogger(), nil)
	return newViewModel(fx), mockServer
}

func inputs(base string, targets []string, start, end time.Time) models.HistoricalInputs {
	return models.HistoricalInputs{
		Base:      base,
		Targets:   targets,
		DateRange: models.DateRange{Start: start, End: end},
	}
}

func TestBuildFrame_VarianceIsPerCurrency(t *testing.T) {
	// deliberately unordered, as the provider gives no ordering guarantee
	frame := BuildFrame([]models.QuotePoint{
		testutils.Quote("2024-05-02", "JPY", "151.1"),
		testutils.Quote("2024-05-02", "EUR", "0.93"),
		testutils.Quote("2024-05-01", "JPY", "151.3"),
		testutils.Quote("2024-05-01", "EUR", "0.92"),
	})

	require.Len(t, frame.Points, 4)
	expected := []struct {
		date, currency, variance string
	}{
		{"2024-05-01", "EUR", "0"},
		{"2024-05-02", "EUR", "0.01"},
		{"2024-05-01", "JPY", "0"},
		{"2024-05-02", "JPY", "-0.2"},
	}
	for i, want := range expected {
		point := frame.Points[i]
		assert.Equal(t, want.date, point.Date.Format(models.DateLayout))
		assert.Equal(t, want.currency, point.Currency)
		assert.True(t, decimal.RequireFromString(want.variance).Equal(point.Variance),
			"%s %s: got %s", want.currency, want.date, point.Variance)
	}
}

func TestBuildFrame_VarianceSumsToNetChange(t *testing.T) {
	points := []models.QuotePoint{
		testutils.Quote("2024-05-03", "EUR", "0.915"),
		testutils.Quote("2024-05-01", "EUR", "0.92"),
		testutils.Quote("2024-05-04", "EUR", "0.9187654321"),
		testutils.Quote("2024-05-02", "EUR", "0.93"),
		testutils.Quote("2024-05-01", "GBP", "0.79"),
		testutils.Quote("2024-05-03", "GBP", "0.805"),
		testutils.Quote("2024-05-02", "GBP", "0.8"),
		testutils.Quote("2024-05-01", "JPY", "151.3"),
	}
	frame := BuildFrame(points)
	require.Len(t, frame.Points, len(points))

	type group struct {
		first, last, sum decimal.Decimal
		count            int
	}
	groups := map[string]*group{}
	for _, point := range frame.Points {
		g, ok := groups[point.Currency]
		if !ok {
			g = &group{first: point.Rate}
			groups[point.Currency] = g
			assert.True(t, point.Variance.IsZero(), "first variance of %s must be zero", point.Currency)
		}
		g.last = point.Rate
		g.sum = g.sum.Add(point.Variance)
		g.count++
	}

	tolerance := decimal.New(1, -9)
	for code, g := range groups {
		diff := g.sum.Sub(g.last.Sub(g.first)).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance), "%s: variance sum %s vs net change %s", code, g.sum, g.last.Sub(g.first))
	}
	assert.Equal(t, 4, groups["EUR"].count)
	assert.Equal(t, 3, groups["GBP"].count)
	assert.Equal(t, 1, groups["JPY"].count)
}

func TestFrame_EmptyInputsMakeNoCall(t *testing.T) {
	start, end := testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 3)
	tests := []struct {
		name   string
		inputs models.HistoricalInputs
	}{
		{name: "everything empty", inputs: models.HistoricalInputs{}},
		{name: "no base", inputs: inputs("", []string{"EUR"}, start, end)},
		{name: "no targets", inputs: inputs("USD", nil, start, end)},
		{name: "no dates", inputs: inputs("USD", []string{"EUR"}, time.Time{}, time.Time{})},
		{name: "end before start", inputs: inputs("USD", []string{"EUR"}, end, start)},
		{name: "start before window", inputs: inputs("USD", []string{"EUR"}, testutils.Day(2023, 11, 1), end)},
		{name: "end after today", inputs: inputs("USD", []string{"EUR"}, start, testutils.Day(2024, 5, 21))},
		{name: "unknown base", inputs: inputs("XXX", []string{"EUR"}, start, end)},
		{name: "unknown target", inputs: inputs("USD", []string{"EUR", "XXX"}, start, end)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := &testutils.MockFxProvider{}
			viewModel := newViewModel(fx)

			frame, err := viewModel.Frame(context.Background(), tt.inputs)
			require.NoError(t, err)
			assert.True(t, frame.Empty())
			assert.Error(t, viewModel.Validate(tt.inputs))
			assert.True(t, errors.Is(viewModel.Validate(tt.inputs), apperrors.ErrValidation))

			table := TableView(frame, EffectiveSelection(tt.inputs.Targets, nil))
			assert.Equal(t, []string{"Date", "Currency", "Rate", "Variance"}, table.Columns)
			assert.Empty(t, table.Rows)

			fx.AssertNotCalled(t, "FetchTimeseries", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestFrame_WindowEdgesAreAccepted(t *testing.T) {
	fx := &testutils.MockFxProvider{}
	fx.On("FetchTimeseries", mock.Anything, "USD", []string{"EUR"}, testutils.Day(2023, 11, 2), today).
		Return([]models.QuotePoint{}, nil).Once()
	viewModel := newViewModel(fx)

	frame, err := viewModel.Frame(context.Background(), inputs("USD", []string{"EUR"}, testutils.Day(2023, 11, 2), today))
	require.NoError(t, err)
	assert.True(t, frame.Empty())
	fx.AssertExpectations(t)
}

func TestHistorical_SingleTarget(t *testing.T) {
	viewModel, mockServer := newBeaconViewModel(t)
	mockServer.SetTimeseries(func(url.Values) interface{} {
		return map[string]map[string]float64{
			"2024-05-03": {"EUR": 0.915},
			"2024-05-01": {"EUR": 0.92},
			"2024-05-02": {"EUR": 0.93},
		}
	})

	frame, err := viewModel.Frame(context.Background(), inputs("USD", []string{"EUR"}, testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 3)))
	require.NoError(t, err)

	table := TableView(frame, EffectiveSelection([]string{"EUR"}, nil))
	assert.Equal(t, []models.TableRow{
		{Date: "2024-05-01", Currency: "EUR", Rate: "0.920", Variance: "0.000"},
		{Date: "2024-05-02", Currency: "EUR", Rate: "0.930", Variance: "0.010"},
		{Date: "2024-05-03", Currency: "EUR", Rate: "0.915", Variance: "-0.015"},
	}, table.Rows)
	assert.Equal(t, 1, mockServer.RequestCount())
}

func TestHistorical_MultiTargetVarianceIsolation(t *testing.T) {
	viewModel, mockServer := newBeaconViewModel(t)
	mockServer.SetTimeseries(func(url.Values) interface{} {
		return map[string]map[string]float64{
			"2024-05-01": {"EUR": 0.92, "JPY": 151.3},
			"2024-05-02": {"EUR": 0.93, "JPY": 151.1},
		}
	})
	targets := []string{"EUR", "JPY"}

	frame, err := viewModel.Frame(context.Background(), inputs("USD", targets, testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 2)))
	require.NoError(t, err)

	table := TableView(frame, targets)
	variances := map[string][]string{}
	for _, row := range table.Rows {
		variances[row.Currency] = append(variances[row.Currency], row.Variance)
	}
	assert.Equal(t, []string{"0.000", "0.010"}, variances["EUR"])
	assert.Equal(t, []string{"0.000", "-0.200"}, variances["JPY"])
}

func TestHistorical_SelectionNarrowing(t *testing.T) {
	viewModel, _ := newBeaconViewModel(t)
	targets := []string{"EUR", "JPY"}

	frame, err := viewModel.Frame(context.Background(), inputs("USD", targets, testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 3)))
	require.NoError(t, err)

	table := TableView(frame, EffectiveSelection(targets, []string{"JPY"}))
	require.NotEmpty(t, table.Rows)
	for _, row := range table.Rows {
		assert.Equal(t, "JPY", row.Currency)
	}

	plot := viewModel.PlotSpec(frame, EffectiveSelection(targets, []string{"EUR"}), "USD")
	require.Len(t, plot.Series, 1)
	assert.Equal(t, "EUR", plot.Series[0].Currency)
	assert.Equal(t, "Euro (EUR)", plot.Series[0].Label)
	assert.Equal(t, []string{"EUR"}, plot.Legend)
	assert.Equal(t, "Historical Exchange Rates from US Dollar (USD) to Euro (EUR)", plot.Title)
	assert.Equal(t, "2006-01-02", plot.XAxisFormat)
	assert.Equal(t, "Currency Rate", plot.YAxisLabel)
	assert.Equal(t, []models.SeriesPoint{
		{Date: "2024-05-01", Rate: 0.92},
		{Date: "2024-05-02", Rate: 0.93},
		{Date: "2024-05-03", Rate: 0.915},
	}, plot.Series[0].Points)
}

func TestPlotSpec_MultipleSeriesTitle(t *testing.T) {
	viewModel := newViewModel(&testutils.MockFxProvider{})
	frame := BuildFrame([]models.QuotePoint{
		testutils.Quote("2024-05-01", "EUR", "0.92"),
		testutils.Quote("2024-05-01", "JPY", "151.3"),
	})

	plot := viewModel.PlotSpec(frame, []string{"JPY", "EUR"}, "USD")
	assert.Equal(t, "Historical Exchange Rates from US Dollar (USD) to Japanese Yen (JPY), Euro (EUR)", plot.Title)
	assert.Equal(t, []string{"JPY", "EUR"}, plot.Legend)

	empty := viewModel.PlotSpec(models.HistoricalFrame{}, nil, "")
	assert.Empty(t, empty.Title)
	assert.Empty(t, empty.Series)
}

func TestTableView_SubsetOfSelectionAndTargets(t *testing.T) {
	frame := BuildFrame([]models.QuotePoint{
		testutils.Quote("2024-05-01", "EUR", "0.92"),
		testutils.Quote("2024-05-01", "GBP", "0.79"),
		testutils.Quote("2024-05-01", "JPY", "151.3"),
	})
	targets := []string{"EUR", "JPY"}

	// GBP was picked earlier but dropped from the targets since
	selection := EffectiveSelection(targets, []string{"GBP", "JPY"})
	table := TableView(frame, selection)

	allowed := map[string]bool{"JPY": true}
	for _, row := range table.Rows {
		assert.True(t, allowed[row.Currency], "unexpected currency %s", row.Currency)
	}
	assert.Len(t, table.Rows, 1)
}

func TestEffectiveSelection(t *testing.T) {
	tests := []struct {
		name     string
		targets  []string
		picked   []string
		expected []string
	}{
		{name: "unset defaults to first target", targets: []string{"JPY", "EUR"}, picked: nil, expected: []string{"JPY"}},
		{name: "empty defaults to first target", targets: []string{"EUR"}, picked: []string{}, expected: []string{"EUR"}},
		{name: "keeps picked order", targets: []string{"EUR", "JPY", "GBP"}, picked: []string{"GBP", "EUR"}, expected: []string{"GBP", "EUR"}},
		{name: "drops members no longer targeted", targets: []string{"EUR"}, picked: []string{"JPY", "EUR"}, expected: []string{"EUR"}},
		{name: "all dropped falls back to default", targets: []string{"GBP", "EUR"}, picked: []string{"JPY"}, expected: []string{"GBP"}},
		{name: "dedupes", targets: []string{"EUR"}, picked: []string{"EUR", "EUR"}, expected: []string{"EUR"}},
		{name: "no targets resets", targets: nil, picked: []string{"EUR"}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EffectiveSelection(tt.targets, tt.picked))
		})
	}
}

func TestFrame_ProviderErrorsPropagate(t *testing.T) {
	transportError := &apperrors.TransportError{Endpoint: "timeseries", Message: "connection refused"}
	fx := &testutils.MockFxProvider{}
	fx.On("FetchTimeseries", mock.Anything, "USD", []string{"EUR"}, mock.Anything, mock.Anything).
		Return(nil, transportError).Once()
	viewModel := newViewModel(fx)

	frame, err := viewModel.Frame(context.Background(), inputs("USD", []string{"EUR"}, testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 3)))
	assert.True(t, frame.Empty())
	assert.ErrorIs(t, err, transportError)
	assert.Equal(t, apperrors.BannerTransport, apperrors.Banner(err))
	fx.AssertExpectations(t)
}

func TestFrame_ConcurrentIdenticalCallsShareOneFetch(t *testing.T) {
	viewModel, mockServer := newBeaconViewModel(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	mockServer.SetGate(func(string, url.Values) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	request := inputs("USD", []string{"EUR", "JPY"}, testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 3))
	const callers = 5
	var waitGroup sync.WaitGroup
	frames := make([]models.HistoricalFrame, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		waitGroup.Add(1)
		go func(i int) {
			defer waitGroup.Done()
			frames[i], errs[i] = viewModel.Frame(context.Background(), request)
		}(i)
	}

	<-entered
	time.Sleep(50 * time.Millisecond)
	close(release)
	waitGroup.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, frames[i].Points, 6)
	}
	assert.Equal(t, 1, mockServer.RequestCount())
}

func TestFrame_CallerCancellation(t *testing.T) {
	viewModel, mockServer := newBeaconViewModel(t)
	release := make(chan struct{})
	mockServer.SetGate(func(string, url.Values) { <-release })
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := viewModel.Frame(ctx, inputs("USD", []string{"EUR"}, testutils.Day(2024, 5, 1), testutils.Day(2024, 5, 3)))
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Frame did not return after cancellation")
	}
}
