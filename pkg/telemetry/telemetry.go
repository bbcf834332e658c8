// Package telemetry wires the engine's ambient observability stack:
// structured logging via zerolog, content redaction via cockroachdb/redact
// for anything that might echo learned concept text into a log line, metric
// counters via prometheus/client_golang, and crash reporting via
// getsentry/sentry-go fired specifically on DurabilityError, the one error
// class that means the engine itself may be in trouble rather than the
// caller's request.
package telemetry

import (
	"os"
	"time"

	"github.com/cockroachdb/redact"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// NewLogger builds the component logger used throughout the engine. Level
// and format match what an operator expects from a long-running daemon:
// human-readable console output when pretty is set (the daemon's
// --log-pretty flag), otherwise plain JSON lines.
func NewLogger(component string, level zerolog.Level, pretty bool) zerolog.Logger {
	var out zerolog.ConsoleWriter
	var logger zerolog.Logger
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(out)
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("component", component).Logger()
}

// RedactContent renders concept content as a "<content N bytes>"
// placeholder so it's safe to include in a log line: only the length is
// kept, and none of the learned user data reaches operator-visible logs.
func RedactContent(content []byte) redact.RedactableString {
	return redact.Sprint(redact.Safe("<content "), len(content), redact.Safe(" bytes>"))
}

// InitSentry wires crash reporting for durability failures (§4.A). A blank
// dsn disables reporting (e.g. in tests) without the caller needing to
// branch.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

// ReportIfDurability sends err to Sentry when it is (or wraps) a
// DurabilityError; every other error class is expected client-facing
// behavior and not worth paging anyone over.
func ReportIfDurability(err error) {
	if err == nil {
		return
	}
	if synerrors.CodeOf(err) != synerrors.CodeDurability {
		return
	}
	sentry.CaptureException(err)
}
