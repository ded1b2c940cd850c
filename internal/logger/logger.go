package logger

import (
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const redactedPlaceholder = "[REDACTED]"

// Logger wraps logrus.Logger
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance. Any non-empty secrets are masked in
// messages and string fields before an entry is written.
func New(level string, secrets ...string) *Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	// Set log level
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if hook := NewRedactHook(secrets...); hook != nil {
		log.AddHook(hook)
	}

	return &Logger{Logger: log}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	log := New("error")
	log.SetOutput(io.Discard)
	return log
}

// RedactHook replaces secret values in log entries.
type RedactHook struct {
	replacer *strings.Replacer
}

// NewRedactHook returns nil when there is nothing to redact. Secrets are
// also masked in their query and path escaped forms, as they appear in URLs.
func NewRedactHook(secrets ...string) *RedactHook {
	pairs := make([]string, 0, len(secrets)*6)
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		for _, escaped := range []string{url.QueryEscape(secret), url.PathEscape(secret)} {
			if escaped != secret {
				pairs = append(pairs, escaped, redactedPlaceholder)
			}
		}
		pairs = append(pairs, secret, redactedPlaceholder)
	}
	if len(pairs) == 0 {
		return nil
	}
	return &RedactHook{replacer: strings.NewReplacer(pairs...)}
}

// Levels implements logrus.Hook
func (hook *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (hook *RedactHook) Fire(entry *logrus.Entry) error {
	entry.Message = hook.replacer.Replace(entry.Message)
	for key, value := range entry.Data {
		switch typed := value.(type) {
		case string:
			entry.Data[key] = hook.replacer.Replace(typed)
		case error:
			entry.Data[key] = hook.replacer.Replace(typed.Error())
		}
	}
	return nil
}

// Redact masks secrets in an arbitrary string.
func (hook *RedactHook) Redact(value string) string {
	if hook == nil {
		return value
	}
	return hook.replacer.Replace(value)
}
