// Package logger sets up the process-wide zerolog logger and provides
// a PII-safe email-masking helper for logging contact data.
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger for the given environment:
// pretty console output at debug level for development, structured
// JSON at info level otherwise.
func Setup(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// With returns the global logger for ad hoc use outside a request or
// background job context.
func With() zerolog.Logger {
	return log.Logger
}

// WithContext returns the logger carried by ctx, falling back to the
// global logger when none is attached.
func WithContext(ctx context.Context) zerolog.Logger {
	return *log.Ctx(ctx)
}

// SanitizeEmail masks an email address for safe logging, e.g.
// john.doe@example.com -> j******e@example.com.
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "invalid-email"
	}

	localPart := parts[0]
	domain := parts[1]

	if len(localPart) <= 1 {
		return "*@" + domain
	}

	sanitized := string(localPart[0]) + strings.Repeat("*", len(localPart)-2) + string(localPart[len(localPart)-1])
	return sanitized + "@" + domain
}
