//go:build windows

// Package platform hides the OS differences in how the dashboard is asked to stop.
package platform

import (
	"context"
	"os"
	"os/signal"
)

// NewShutdownContext is cancelled on Ctrl+C. Console apps on Windows do not
// reliably receive SIGTERM.
func NewShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}
