package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/metrics"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
	"github.com/dalfonso89/currency-trends-dashboard/internal/provider"
)

const (
	displayPlaces  = 3
	plotYAxisLabel = "Currency Rate"
	plotTitle      = "Historical Exchange Rates from %s to %s"
)

// HistoricalViewModel turns historical inputs and view selections into a table and a plot
type HistoricalViewModel struct {
	provider   provider.FxProvider
	dictionary *currency.Dictionary
	dashboard  config.DashboardConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	singleFlightGroup singleflight.Group
}

// NewHistoricalViewModel creates a view model. metrics may be nil.
func NewHistoricalViewModel(fx provider.FxProvider, dictionary *currency.Dictionary, dashboard config.DashboardConfig, log *logger.Logger, m *metrics.Metrics) *HistoricalViewModel {
	return &HistoricalViewModel{
		provider:   fx,
		dictionary: dictionary,
		dashboard:  dashboard,
		logger:     log,
		metrics:    m,
		now:        time.Now,
	}
}

// SetClock replaces the clock used for the date window checks
func (viewModel *HistoricalViewModel) SetClock(now func() time.Time) {
	viewModel.now = now
}

// Bounds returns the selectable date window [today-N days, today]
func (viewModel *HistoricalViewModel) Bounds() (time.Time, time.Time) {
	return viewModel.dashboard.HistoryBounds(viewModel.now())
}

// Validate reports the first reason inputs cannot be fetched, or nil
func (viewModel *HistoricalViewModel) Validate(inputs models.HistoricalInputs) error {
	switch {
	case inputs.Base == "":
		return &apperrors.InputValidationError{Field: "base", Reason: "is required"}
	case len(inputs.Targets) == 0:
		return &apperrors.InputValidationError{Field: "targets", Reason: "at least one target is required"}
	case inputs.DateRange.IsZero():
		return &apperrors.InputValidationError{Field: "date range", Reason: "start and end dates are required"}
	case inputs.DateRange.End.Before(inputs.DateRange.Start):
		return &apperrors.InputValidationError{Field: "date range", Reason: "end date is before start date"}
	}

	if viewModel.dictionary != nil {
		if _, ok := viewModel.dictionary.Lookup(inputs.Base); !ok {
			return &apperrors.InputValidationError{Field: "base", Reason: "unknown currency " + inputs.Base}
		}
		for _, target := range inputs.Targets {
			if _, ok := viewModel.dictionary.Lookup(target); !ok {
				return &apperrors.InputValidationError{Field: "targets", Reason: "unknown currency " + target}
			}
		}
	}

	minDate, maxDate := viewModel.Bounds()
	switch {
	case inputs.DateRange.Start.Before(minDate):
		return &apperrors.InputValidationError{Field: "start_date", Reason: "is before " + minDate.Format(models.DateLayout)}
	case inputs.DateRange.End.After(maxDate):
		return &apperrors.InputValidationError{Field: "end_date", Reason: "is after " + maxDate.Format(models.DateLayout)}
	}
	return nil
}

// Frame fetches the timeseries for inputs and derives the variance column.
// Empty or malformed inputs yield an empty frame without a provider call.
// Concurrent callers with identical inputs share one fetch.
func (viewModel *HistoricalViewModel) Frame(ctx context.Context, inputs models.HistoricalInputs) (models.HistoricalFrame, error) {
	if err := viewModel.Validate(inputs); err != nil {
		viewModel.logger.WithField("reason", err.Error()).Debug("Skipping fetch for incomplete inputs")
		viewModel.metrics.ObserveFrame("empty")
		return models.HistoricalFrame{}, nil
	}

	// the shared fetch runs detached so one caller's cancellation
	// does not fail the others; each caller still stops waiting on its own ctx
	resultChannel := viewModel.singleFlightGroup.DoChan(frameKey(inputs), func() (interface{}, error) {
		points, err := viewModel.provider.FetchTimeseries(context.WithoutCancel(ctx),
			inputs.Base, inputs.Targets, inputs.DateRange.Start, inputs.DateRange.End)
		if err != nil {
			return models.HistoricalFrame{}, err
		}
		return BuildFrame(points), nil
	})

	select {
	case <-ctx.Done():
		return models.HistoricalFrame{}, ctx.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			viewModel.metrics.ObserveFrame(apperrors.Kind(result.Err))
			viewModel.logger.WithFields(logrus.Fields{
				"base":    inputs.Base,
				"targets": strings.Join(inputs.Targets, ","),
				"kind":    apperrors.Kind(result.Err),
			}).Warn("Historical frame unavailable")
			return models.HistoricalFrame{}, result.Err
		}
		frame := result.Val.(models.HistoricalFrame)
		viewModel.metrics.ObserveFrame("ok")
		return frame, nil
	}
}

func frameKey(inputs models.HistoricalInputs) string {
	return strings.Join([]string{
		inputs.Base,
		strings.Join(inputs.Targets, ","),
		inputs.DateRange.Start.Format(models.DateLayout),
		inputs.DateRange.End.Format(models.DateLayout),
	}, "|")
}

// BuildFrame sorts points by (currency, date) and computes the per-currency
// first difference. The first observation of every currency has variance 0.
func BuildFrame(points []models.QuotePoint) models.HistoricalFrame {
	sorted := make([]models.QuotePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Currency != sorted[j].Currency {
			return sorted[i].Currency < sorted[j].Currency
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	frame := models.HistoricalFrame{Points: make([]models.FramePoint, len(sorted))}
	for i, point := range sorted {
		variance := decimal.Zero
		if i > 0 && sorted[i-1].Currency == point.Currency {
			variance = point.Rate.Sub(sorted[i-1].Rate)
		}
		frame.Points[i] = models.FramePoint{QuotePoint: point, Variance: variance}
	}
	return frame
}

// EffectiveSelection intersects picked with targets, keeping picked order.
// An empty result defaults to the first target; no targets means no selection.
func EffectiveSelection(targets, picked []string) []string {
	if len(targets) == 0 {
		return []string{}
	}

	allowed := make(map[string]bool, len(targets))
	for _, target := range targets {
		allowed[target] = true
	}

	selection := make([]string, 0, len(picked))
	seen := make(map[string]bool, len(picked))
	for _, code := range picked {
		if allowed[code] && !seen[code] {
			selection = append(selection, code)
			seen[code] = true
		}
	}
	if len(selection) == 0 {
		return []string{targets[0]}
	}
	return selection
}

// TableView filters frame to selection and formats rate and variance at 3 dp
func TableView(frame models.HistoricalFrame, selection []string) models.TableView {
	selected := toSet(selection)

	view := models.TableView{
		Columns: models.HistoricalColumns,
		Rows:    []models.TableRow{},
	}
	for _, point := range frame.Points {
		if !selected[point.Currency] {
			continue
		}
		view.Rows = append(view.Rows, models.TableRow{
			Date:     point.Date.Format(models.DateLayout),
			Currency: point.Currency,
			Rate:     point.Rate.StringFixed(displayPlaces),
			Variance: point.Variance.StringFixed(displayPlaces),
		})
	}
	return view
}

// PlotSpec builds one line series per selected currency present in frame
func (viewModel *HistoricalViewModel) PlotSpec(frame models.HistoricalFrame, selection []string, base string) models.PlotSpec {
	spec := models.PlotSpec{
		YAxisLabel:  plotYAxisLabel,
		XAxisFormat: models.DateLayout,
		Series:      []models.PlotSeries{},
		Legend:      []string{},
	}

	byCurrency := make(map[string][]models.SeriesPoint)
	for _, point := range frame.Points {
		rate, _ := point.Rate.Float64()
		byCurrency[point.Currency] = append(byCurrency[point.Currency], models.SeriesPoint{
			Date: point.Date.Format(models.DateLayout),
			Rate: rate,
		})
	}

	labels := make([]string, 0, len(selection))
	for _, code := range selection {
		label := viewModel.label(code)
		labels = append(labels, label)

		points, ok := byCurrency[code]
		if !ok {
			continue
		}
		spec.Series = append(spec.Series, models.PlotSeries{Currency: code, Label: label, Points: points})
		spec.Legend = append(spec.Legend, code)
	}

	if base != "" && len(labels) > 0 {
		spec.Title = fmt.Sprintf(plotTitle, viewModel.label(base), strings.Join(labels, ", "))
	}
	return spec
}

func (viewModel *HistoricalViewModel) label(code string) string {
	if viewModel.dictionary == nil {
		return code
	}
	return viewModel.dictionary.LabelFor(code)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
