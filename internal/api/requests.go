package api

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
	"github.com/dalfonso89/currency-trends-dashboard/internal/currency"
	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
)

// historicalInputsRequest is the body of PUT historical/inputs.
// Every field may be empty; empty inputs render an empty table.
type historicalInputsRequest struct {
	Base      string   `json:"base" binding:"omitempty,currency"`
	Targets   []string `json:"targets" binding:"omitempty,max=20,dive,currency"`
	StartDate string   `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string   `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

// selectionRequest is the body of PUT historical/selection/:view.
// A missing, null or empty list clears the pick so the first target shows again.
type selectionRequest struct {
	Currencies []string `json:"currencies" binding:"omitempty,dive,currency"`
}

// calculatorInputsRequest is the body of PUT calculator/inputs
type calculatorInputsRequest struct {
	From   string          `json:"from" binding:"required,currency"`
	To     string          `json:"to" binding:"required,currency"`
	Amount decimal.Decimal `json:"amount"`
}

// registerValidators adds the "currency" tag, which accepts a known short
// code or a "<name> (<code>)" label
func registerValidators(dictionary *currency.Dictionary) error {
	validate, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return validate.RegisterValidation("currency", func(field validator.FieldLevel) bool {
		_, err := dictionary.Resolve(field.Field().String())
		return err == nil
	})
}

func (request historicalInputsRequest) toInputs(dictionary *currency.Dictionary) (models.HistoricalInputs, error) {
	var inputs models.HistoricalInputs
	var err error

	if request.Base != "" {
		if inputs.Base, err = dictionary.Resolve(request.Base); err != nil {
			return inputs, &apperrors.InputValidationError{Field: "base", Reason: err.Error()}
		}
	}
	if inputs.Targets, err = dictionary.ResolveAll(request.Targets); err != nil {
		return inputs, &apperrors.InputValidationError{Field: "targets", Reason: err.Error()}
	}
	if inputs.DateRange.Start, err = parseDate(request.StartDate); err != nil {
		return inputs, &apperrors.InputValidationError{Field: "start_date", Reason: err.Error()}
	}
	if inputs.DateRange.End, err = parseDate(request.EndDate); err != nil {
		return inputs, &apperrors.InputValidationError{Field: "end_date", Reason: err.Error()}
	}
	return inputs, nil
}

func (request selectionRequest) toCodes(dictionary *currency.Dictionary) ([]string, error) {
	if request.Currencies == nil {
		return nil, nil
	}
	codes, err := dictionary.ResolveAll(request.Currencies)
	if err != nil {
		return nil, &apperrors.InputValidationError{Field: "currencies", Reason: err.Error()}
	}
	return codes, nil
}

func (request calculatorInputsRequest) toInputs(dictionary *currency.Dictionary) (models.CalculatorInputs, error) {
	from, err := dictionary.Resolve(request.From)
	if err != nil {
		return models.CalculatorInputs{}, &apperrors.InputValidationError{Field: "from", Reason: err.Error()}
	}
	to, err := dictionary.Resolve(request.To)
	if err != nil {
		return models.CalculatorInputs{}, &apperrors.InputValidationError{Field: "to", Reason: err.Error()}
	}
	if request.Amount.IsNegative() {
		return models.CalculatorInputs{}, &apperrors.InputValidationError{Field: "amount", Reason: "must not be negative"}
	}
	return models.CalculatorInputs{From: from, To: to, Amount: request.Amount}, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(models.DateLayout, value)
}
