// Package session binds one dashboard tab's inputs to its view models
// through a reactive graph.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
	"github.com/dalfonso89/currency-trends-dashboard/internal/reactive"
	"github.com/dalfonso89/currency-trends-dashboard/internal/service"
)

// View names a secondary selection
type View string

const (
	ViewTable View = "table"
	ViewPlot  View = "plot"
)

// ParseView validates a view name
func ParseView(value string) (View, error) {
	switch View(value) {
	case ViewTable, ViewPlot:
		return View(value), nil
	default:
		return "", &apperrors.InputValidationError{Field: "view", Reason: fmt.Sprintf("must be %q or %q", ViewTable, ViewPlot)}
	}
}

// Dependencies are the process-wide collaborators every session shares
type Dependencies struct {
	Historical *service.HistoricalViewModel
	Calculator *service.CalculatorViewModel
	Dashboard  config.DashboardConfig
	Logger     *logger.Logger
}

// Session is one tab's state: input signals, memoized outputs and the calculator
type Session struct {
	id        string
	createdAt time.Time
	lastSeen  atomic.Int64

	historical *service.HistoricalViewModel
	calculator *service.CalculatorViewModel
	logger     *logrus.Entry

	// writers hold inputsMutex while setting signals; computations snapshot
	// their inputs under the read lock so they never see a half-applied update
	inputsMutex sync.RWMutex

	base        *reactive.Signal[string]
	targets     *reactive.Signal[[]string]
	dateRange   *reactive.Signal[models.DateRange]
	tablePicked *reactive.Signal[[]string]
	plotPicked  *reactive.Signal[[]string]

	frame          *reactive.Computed[models.HistoricalFrame]
	tableSelection *reactive.Computed[[]string]
	plotSelection  *reactive.Computed[[]string]
	tableRows      *reactive.Computed[models.TableView]
	plotSpec       *reactive.Computed[models.PlotSpec]

	calculatorMutex sync.Mutex
	from            string
	to              string
	amount          decimal.Decimal
	actions         uint64
	lastResult      *models.CalculatorResult
}

// New creates a session seeded with the dashboard defaults
func New(id string, deps Dependencies, now time.Time) *Session {
	start, end := deps.Dashboard.DefaultRange(now)

	session := &Session{
		id:         id,
		createdAt:  now,
		historical: deps.Historical,
		calculator: deps.Calculator,
		logger:     deps.Logger.WithField("session", id),

		base:        reactive.NewSignal(deps.Dashboard.DefaultBase, nil),
		targets:     reactive.NewSignal([]string{deps.Dashboard.DefaultTarget}, nil),
		dateRange:   reactive.NewSignal(models.DateRange{Start: start, End: end}, nil),
		tablePicked: reactive.NewSignal[[]string](nil, nil),
		plotPicked:  reactive.NewSignal[[]string](nil, nil),

		from:   deps.Dashboard.DefaultBase,
		to:     deps.Dashboard.DefaultTarget,
		amount: decimal.NewFromInt(1),
	}
	session.lastSeen.Store(now.UnixNano())
	session.wire()
	return session
}

// wire builds the dependency edges between inputs and outputs
func (session *Session) wire() {
	session.frame = reactive.NewComputed("frame", func(ctx context.Context) (models.HistoricalFrame, error) {
		session.inputsMutex.RLock()
		inputs := models.HistoricalInputs{
			Base:      session.base.Get(),
			Targets:   session.targets.Get(),
			DateRange: session.dateRange.Get(),
		}
		session.inputsMutex.RUnlock()
		return session.historical.Frame(ctx, inputs)
	}, session.base, session.targets, session.dateRange)

	session.tableSelection = reactive.NewComputed("tableSelection", func(ctx context.Context) ([]string, error) {
		session.inputsMutex.RLock()
		defer session.inputsMutex.RUnlock()
		return service.EffectiveSelection(session.targets.Get(), session.tablePicked.Get()), nil
	}, session.targets, session.tablePicked)

	session.plotSelection = reactive.NewComputed("plotSelection", func(ctx context.Context) ([]string, error) {
		session.inputsMutex.RLock()
		defer session.inputsMutex.RUnlock()
		return service.EffectiveSelection(session.targets.Get(), session.plotPicked.Get()), nil
	}, session.targets, session.plotPicked)

	session.tableRows = reactive.NewComputed("tableRows", func(ctx context.Context) (models.TableView, error) {
		frame, err := session.frame.Get(ctx)
		if err != nil {
			return models.TableView{}, err
		}
		selection, err := session.tableSelection.Get(ctx)
		if err != nil {
			return models.TableView{}, err
		}
		return service.TableView(frame, selection), nil
	}, session.frame, session.tableSelection)

	session.plotSpec = reactive.NewComputed("plotSpec", func(ctx context.Context) (models.PlotSpec, error) {
		frame, err := session.frame.Get(ctx)
		if err != nil {
			return models.PlotSpec{}, err
		}
		selection, err := session.plotSelection.Get(ctx)
		if err != nil {
			return models.PlotSpec{}, err
		}
		session.inputsMutex.RLock()
		base := session.base.Get()
		session.inputsMutex.RUnlock()
		return session.historical.PlotSpec(frame, selection, base), nil
	}, session.frame, session.plotSelection, session.base)
}

// ID returns the session identifier
func (session *Session) ID() string {
	return session.id
}

// Touch records activity at now
func (session *Session) Touch(now time.Time) {
	session.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the last recorded activity
func (session *Session) LastSeen() time.Time {
	return time.Unix(0, session.lastSeen.Load())
}

// SetHistoricalInputs replaces base, targets and date range as one update.
// Targets keep the order given; that order decides the default selections.
// Emptying the targets also forgets both picks.
func (session *Session) SetHistoricalInputs(inputs models.HistoricalInputs) {
	session.inputsMutex.Lock()
	defer session.inputsMutex.Unlock()

	targets := inputs.Targets
	if targets == nil {
		targets = []string{}
	}
	session.base.Set(inputs.Base)
	session.targets.Set(targets)
	session.dateRange.Set(inputs.DateRange)
	if len(targets) == 0 {
		session.tablePicked.Set(nil)
		session.plotPicked.Set(nil)
	}
}

// SetSelection records the user's pick for a view. A nil or empty pick
// means nothing is picked, so the view falls back to the first target.
func (session *Session) SetSelection(view View, picked []string) {
	session.inputsMutex.Lock()
	defer session.inputsMutex.Unlock()

	switch view {
	case ViewTable:
		session.tablePicked.Set(picked)
	case ViewPlot:
		session.plotPicked.Set(picked)
	}
}

// Table returns the table rows for the current inputs. Provider failures
// degrade to an empty table with a banner; only ctx errors are returned.
func (session *Session) Table(ctx context.Context) (models.TableView, error) {
	view, err := session.tableRows.Get(ctx)
	if err == nil {
		return view, nil
	}
	if ctx.Err() != nil {
		return models.TableView{}, ctx.Err()
	}
	session.logDegraded("table", err)
	return models.TableView{
		Columns: models.HistoricalColumns,
		Rows:    []models.TableRow{},
		Banner:  apperrors.Banner(err),
	}, nil
}

// Plot returns the plot spec for the current inputs, degrading like Table
func (session *Session) Plot(ctx context.Context) (models.PlotSpec, error) {
	spec, err := session.plotSpec.Get(ctx)
	if err == nil {
		return spec, nil
	}
	if ctx.Err() != nil {
		return models.PlotSpec{}, ctx.Err()
	}
	session.logDegraded("plot", err)
	return models.PlotSpec{
		YAxisLabel:  "Currency Rate",
		XAxisFormat: models.DateLayout,
		Series:      []models.PlotSeries{},
		Legend:      []string{},
		Banner:      apperrors.Banner(err),
	}, nil
}

// Selection returns the effective selection for a view
func (session *Session) Selection(ctx context.Context, view View) ([]string, error) {
	if view == ViewPlot {
		return session.plotSelection.Get(ctx)
	}
	return session.tableSelection.Get(ctx)
}

// Refresh drops the memoized frame so the next read fetches again
func (session *Session) Refresh() {
	session.frame.Invalidate()
}

// FrameGeneration exposes the frame node's generation, bumped on every relevant input change
func (session *Session) FrameGeneration() uint64 {
	return session.frame.Generation()
}

// SetCalculatorInputs stores the calculator widgets; nothing is computed until Compute
func (session *Session) SetCalculatorInputs(inputs models.CalculatorInputs) {
	session.calculatorMutex.Lock()
	defer session.calculatorMutex.Unlock()
	session.from = inputs.From
	session.to = inputs.To
	session.amount = inputs.Amount
}

// Compute fires the calculator action with the inputs as they are now.
// Failures are reported inline in the result.
func (session *Session) Compute(ctx context.Context, progress service.ProgressFunc) models.CalculatorResult {
	session.calculatorMutex.Lock()
	session.actions++
	action := session.actions
	from, to, amount := session.from, session.to, session.amount
	session.calculatorMutex.Unlock()

	result := models.CalculatorResult{Action: action}
	markdown, err := session.calculator.Compute(ctx, from, to, amount, progress)
	switch {
	case err == nil:
		result.Markdown = markdown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Error = "Calculation cancelled."
	default:
		result.Error = apperrors.Banner(err)
		session.logger.WithFields(logrus.Fields{
			"action": action,
			"kind":   apperrors.Kind(err),
		}).Warn("Calculator action failed")
	}

	session.calculatorMutex.Lock()
	if session.lastResult == nil || session.lastResult.Action < action {
		stored := result
		session.lastResult = &stored
	}
	session.calculatorMutex.Unlock()
	return result
}

// State returns a snapshot of the session's inputs and selections
func (session *Session) State(ctx context.Context) (models.SessionState, error) {
	tableSelection, err := session.tableSelection.Get(ctx)
	if err != nil {
		return models.SessionState{}, err
	}
	plotSelection, err := session.plotSelection.Get(ctx)
	if err != nil {
		return models.SessionState{}, err
	}

	minDate, maxDate := session.historical.Bounds()
	session.inputsMutex.RLock()
	dateRange := session.dateRange.Get()
	historical := models.HistoricalState{
		Base:           session.base.Get(),
		Targets:        session.targets.Get(),
		StartDate:      formatDate(dateRange.Start),
		EndDate:        formatDate(dateRange.End),
		TableSelection: tableSelection,
		PlotSelection:  plotSelection,
		MinDate:        formatDate(minDate),
		MaxDate:        formatDate(maxDate),
	}
	session.inputsMutex.RUnlock()

	session.calculatorMutex.Lock()
	calculator := models.CalculatorState{
		From:       session.from,
		To:         session.to,
		Amount:     session.amount,
		Actions:    session.actions,
		LastResult: session.lastResult,
	}
	session.calculatorMutex.Unlock()

	return models.SessionState{
		ID:         session.id,
		CreatedAt:  session.createdAt,
		Historical: historical,
		Calculator: calculator,
	}, nil
}

func (session *Session) logDegraded(output string, err error) {
	session.logger.WithFields(logrus.Fields{
		"output": output,
		"kind":   apperrors.Kind(err),
	}).Warn("Rendering degraded output")
}

func formatDate(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	return date.Format(models.DateLayout)
}
