package logger

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level    string
		expected string
	}{
		{level: "debug", expected: "debug"},
		{level: "info", expected: "info"},
		{level: "warn", expected: "warning"},
		{level: "error", expected: "error"},
		{level: "verbose", expected: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := New(tt.level).GetLevel().String(); got != tt.expected {
				t.Errorf("New(%q) level = %s, want %s", tt.level, got, tt.expected)
			}
		})
	}
}

func TestNew_RedactsSecrets(t *testing.T) {
	const secret = "s3cr3t-key"

	var output bytes.Buffer
	log := New("debug", secret)
	log.SetOutput(&output)

	log.WithField("url", "https://api.example.com/v1/convert?api_key="+secret).
		WithField("error", errors.New("dial failed for key "+secret)).
		Infof("calling provider with %s", secret)

	line := output.String()
	if strings.Contains(line, secret) {
		t.Fatalf("secret leaked into log line: %s", line)
	}
	if strings.Count(line, redactedPlaceholder) != 3 {
		t.Errorf("expected three redactions, got %s", line)
	}
}

func TestNewRedactHook_RedactsEscapedForms(t *testing.T) {
	const secret = "k3y+with/slash=&more"
	hook := NewRedactHook(secret)

	query := url.Values{"api_key": {secret}}.Encode()
	for _, value := range []string{
		secret,
		"https://api.example.com/v1/latest?" + query,
		"https://api.example.com/keys/" + url.PathEscape(secret),
	} {
		got := hook.Redact(value)
		if strings.Contains(got, secret) || strings.Contains(got, url.QueryEscape(secret)) || strings.Contains(got, url.PathEscape(secret)) {
			t.Errorf("Redact(%q) = %q, secret still visible", value, got)
		}
		if !strings.Contains(got, redactedPlaceholder) {
			t.Errorf("Redact(%q) = %q, expected placeholder", value, got)
		}
	}
}

func TestNewRedactHook_NothingToRedact(t *testing.T) {
	if hook := NewRedactHook("", ""); hook != nil {
		t.Error("expected nil hook for empty secrets")
	}

	var hook *RedactHook
	if got := hook.Redact("unchanged"); got != "unchanged" {
		t.Errorf("nil hook Redact() = %q", got)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
}
