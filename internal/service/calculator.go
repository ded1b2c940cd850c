package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/config"
	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
	"github.com/dalfonso89/currency-trends-dashboard/internal/provider"
)

const (
	progressStartMessage = "Calculation in progress"
	progressStepMessage  = "Computing"
)

// ProgressFunc receives progress ticks. It must not block for long.
type ProgressFunc func(step models.ProgressStep)

// CalculatorViewModel produces the exchange statement for the calculator tab
type CalculatorViewModel struct {
	provider   provider.FxProvider
	dictionary *currency.Dictionary
	steps      int
	delay      time.Duration
	logger     *logger.Logger
}

// NewCalculatorViewModel creates a calculator using the configured progress steps and delay
func NewCalculatorViewModel(fx provider.FxProvider, dictionary *currency.Dictionary, dashboard config.DashboardConfig, log *logger.Logger) *CalculatorViewModel {
	return &CalculatorViewModel{
		provider:   fx,
		dictionary: dictionary,
		steps:      dashboard.ProgressSteps,
		delay:      dashboard.ProgressDelay,
		logger:     log,
	}
}

// Compute resolves the currencies, runs the progress indicator, converts and
// formats the result as markdown. from and to may be short codes or labels.
func (calculator *CalculatorViewModel) Compute(ctx context.Context, from, to string, amount decimal.Decimal, progress ProgressFunc) (string, error) {
	fromCode, err := calculator.dictionary.Resolve(from)
	if err != nil {
		return "", &apperrors.InputValidationError{Field: "from", Reason: err.Error()}
	}
	toCode, err := calculator.dictionary.Resolve(to)
	if err != nil {
		return "", &apperrors.InputValidationError{Field: "to", Reason: err.Error()}
	}
	if amount.IsNegative() {
		return "", &apperrors.InputValidationError{Field: "amount", Reason: "must not be negative"}
	}

	if err := calculator.animate(ctx, progress); err != nil {
		return "", err
	}

	response, err := calculator.provider.Convert(ctx, fromCode, toCode, amount)
	if err != nil {
		calculator.logger.WithFields(logrus.Fields{
			"from": fromCode,
			"to":   toCode,
			"kind": apperrors.Kind(err),
		}).Warn("Conversion failed")
		return "", err
	}

	return FormatExchange(response, fromCode, toCode), nil
}

// animate advances the cosmetic progress indicator; it is not tied to the remote call
func (calculator *CalculatorViewModel) animate(ctx context.Context, progress ProgressFunc) error {
	if progress == nil {
		progress = func(models.ProgressStep) {}
	}
	progress(models.ProgressStep{Step: 0, Total: calculator.steps, Message: progressStartMessage})

	for step := 1; step <= calculator.steps; step++ {
		progress(models.ProgressStep{Step: step, Total: calculator.steps, Message: progressStepMessage})
		if calculator.delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		timer := time.NewTimer(calculator.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// FormatExchange renders the calculator markdown, showing the amount the provider echoed
func FormatExchange(response models.ConvertResponse, from, to string) string {
	return fmt.Sprintf("Exchange Value: **%s %s** for **%s %s**",
		response.Value.StringFixed(2), to, response.EchoedAmount.String(), from)
}
