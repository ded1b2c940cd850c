// Package apperrors defines the error taxonomy shared by the provider
// adapter, the view models and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrStale indicates a computation was superseded by newer inputs.
var ErrStale = errors.New("computation superseded by newer inputs")

// User-facing banners. None of them carry provider details.
const (
	BannerTransport = "Unable to reach FX provider; please retry."
	BannerProvider  = "The FX provider returned an error; please try again later."
	BannerDecode    = "The FX provider sent an unexpected response; please try again later."
	BannerInternal  = "Something went wrong; please try again."
)

// InputValidationError is an empty or malformed user input. It never reaches the provider.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match
func (e *InputValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError covers DNS, TCP, TLS and timeout failures.
type TransportError struct {
	Endpoint string
	Timeout  bool
	Message  string
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport error calling %s: timeout: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("transport error calling %s: %s", e.Endpoint, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	Endpoint string
	Status   int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d for %s", e.Status, e.Endpoint)
}

// DecodeError is a response body with an unexpected shape.
type DecodeError struct {
	Endpoint string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %s", e.Endpoint, e.Reason)
}

// Banner maps an error to the message shown to the user.
func Banner(err error) string {
	var (
		transportError *TransportError
		providerError  *ProviderError
		decodeError    *DecodeError
		inputError     *InputValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &transportError):
		return BannerTransport
	case errors.As(err, &providerError):
		return BannerProvider
	case errors.As(err, &decodeError):
		return BannerDecode
	case errors.As(err, &inputError):
		return inputError.Error()
	default:
		return BannerInternal
	}
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	var (
		transportError *TransportError
		providerError  *ProviderError
		decodeError    *DecodeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transportError):
		return "transport_error"
	case errors.As(err, &providerError):
		return "provider_error"
	case errors.As(err, &decodeError):
		return "decode_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrStale):
		return "stale"
	default:
		return "error"
	}
}
