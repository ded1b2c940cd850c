package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and axis format for dates
const DateLayout = "2006-01-02"

// Canonical historical table columns
var HistoricalColumns = []string{"Date", "Currency", "Rate", "Variance"}

// CurrencyEntry is one row of the currency dictionary
type CurrencyEntry struct {
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
}

// CurrencyOption is a structured selector option
type CurrencyOption struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

// QuotePoint is one tidy observation from the timeseries endpoint
type QuotePoint struct {
	Date     time.Time
	Currency string
	Rate     decimal.Decimal
}

// FramePoint is a quote with its per-currency first difference
type FramePoint struct {
	QuotePoint
	Variance decimal.Decimal
}

// HistoricalFrame is ordered by currency then date ascending
type HistoricalFrame struct {
	Points []FramePoint
}

// Empty reports whether the frame has no observations
func (frame HistoricalFrame) Empty() bool {
	return len(frame.Points) == 0
}

// DateRange is an inclusive calendar range
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether either bound is unset
func (dateRange DateRange) IsZero() bool {
	return dateRange.Start.IsZero() || dateRange.End.IsZero()
}

// HistoricalInputs are the inputs to the historical frame
type HistoricalInputs struct {
	Base      string
	Targets   []string
	DateRange DateRange
}

// TableRow is one displayed row of the historical table
type TableRow struct {
	Date     string `json:"date"`
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
	Variance string `json:"variance"`
}

// TableView is the rendered historical table
type TableView struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
	Banner  string     `json:"banner,omitempty"`
}

// SeriesPoint is one x/y pair in a plot series
type SeriesPoint struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// PlotSeries is a single line in the plot
type PlotSeries struct {
	Currency string        `json:"currency"`
	Label    string        `json:"label"`
	Points   []SeriesPoint `json:"points"`
}

// PlotSpec describes the historical line plot
type PlotSpec struct {
	Title       string       `json:"title"`
	YAxisLabel  string       `json:"y_axis_label"`
	XAxisFormat string       `json:"x_axis_format"`
	Series      []PlotSeries `json:"series"`
	Legend      []string     `json:"legend"`
	Banner      string       `json:"banner,omitempty"`
}

// ConvertRequest is a point-in-time conversion request
type ConvertRequest struct {
	From   string
	To     string
	Amount decimal.Decimal
}

// ConvertResponse carries the converted value and the amount the provider echoed
type ConvertResponse struct {
	Value        decimal.Decimal
	EchoedAmount decimal.Decimal
}

// ProgressStep is one tick of the calculator's progress indicator
type ProgressStep struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// CalculatorInputs are the calculator widget values sampled when the action fires
type CalculatorInputs struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// CalculatorResult is the output of one calculator action
type CalculatorResult struct {
	Action   uint64 `json:"action"`
	Markdown string `json:"markdown"`
	Error    string `json:"error,omitempty"`
}

// HistoricalState is the historical pane as the session currently holds it
type HistoricalState struct {
	Base           string   `json:"base"`
	Targets        []string `json:"targets"`
	StartDate      string   `json:"start_date,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	TableSelection []string `json:"table_selection"`
	PlotSelection  []string `json:"plot_selection"`
	MinDate        string   `json:"min_date"`
	MaxDate        string   `json:"max_date"`
}

// CalculatorState is the calculator pane as the session currently holds it
type CalculatorState struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Amount     decimal.Decimal   `json:"amount"`
	Actions    uint64            `json:"actions"`
	LastResult *CalculatorResult `json:"last_result,omitempty"`
}

// SessionState is the snapshot returned by GET /sessions/:id
type SessionState struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Historical HistoricalState `json:"historical"`
	Calculator CalculatorState `json:"calculator"`
}

// HealthCheck represents the health check response
type HealthCheck struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	Currencies int       `json:"currencies"`
	Sessions   int       `json:"sessions"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
