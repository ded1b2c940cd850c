package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBanner(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "transport", err: &TransportError{Endpoint: "timeseries", Message: "connection refused"}, want: BannerTransport},
		{name: "wrapped provider", err: fmt.Errorf("frame: %w", &ProviderError{Endpoint: "convert", Status: 502}), want: BannerProvider},
		{name: "decode", err: &DecodeError{Endpoint: "convert", Reason: "missing response"}, want: BannerDecode},
		{name: "validation", err: &InputValidationError{Field: "amount", Reason: "must be positive"}, want: "invalid amount: must be positive"},
		{name: "other", err: errors.New("boom"), want: BannerInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Banner(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "transport_error", Kind(&TransportError{}))
	assert.Equal(t, "provider_error", Kind(&ProviderError{Status: 500}))
	assert.Equal(t, "decode_error", Kind(&DecodeError{}))
	assert.Equal(t, "validation_error", Kind(&InputValidationError{Field: "base"}))
	assert.Equal(t, "stale", Kind(fmt.Errorf("frame: %w", ErrStale)))
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{Endpoint: "timeseries", Timeout: true, Message: "deadline", Cause: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timeout")
	assert.ErrorIs(t, &InputValidationError{Field: "targets"}, ErrValidation)
}
