package logging_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/finlink/internal/logging"
)

func TestSecretRedactionAtEveryLevel(t *testing.T) {
	t.Parallel()

	secretValue := "super-secret-password-12345"
	secret := logging.Secret(secretValue)

	levels := map[string]func(l *logging.Logger){
		"info":  func(l *logging.Logger) { l.Info("retrieved secret: %s", secret) },
		"warn":  func(l *logging.Logger) { l.Warn("retrieved secret: %v", secret) },
		"error": func(l *logging.Logger) { l.Error("retrieved secret: %#v", secret) },
		"debug": func(l *logging.Logger) { l.Debug("retrieved secret: %s", secret) },
	}

	for name, logFn := range levels {
		logFn := logFn
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := logging.NewWithOptions(logging.Options{Debug: true, Format: logging.FormatJSON, Out: &buf})
			logFn(logger)

			out := buf.String()
			assert.Contains(t, out, "[REDACTED]")
			assert.NotContains(t, out, secretValue)
			assert.Contains(t, out, "retrieved secret")
		})
	}
}

func TestSecretRedactionInStructuredField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{Format: logging.FormatJSON, Out: &buf})
	logger.With("token", logging.Secret("tok-abcdef")).Info("issued")

	assert.Contains(t, buf.String(), `"token":"[REDACTED]"`)
	assert.NotContains(t, buf.String(), "tok-abcdef")
}
