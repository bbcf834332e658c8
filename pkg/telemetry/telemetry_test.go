package telemetry

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

func TestNewLoggerTagsComponent(t *testing.T) {
	logger := NewLogger("testcomp", zerolog.InfoLevel, false)
	var buf strings.Builder
	logger.Output(&buf).Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"testcomp"`) {
		t.Fatalf("expected component field in log output, got %s", buf.String())
	}
}

func TestRedactContentNeverIncludesRawBytes(t *testing.T) {
	secret := []byte("the user's private thought")
	redacted := RedactContent(secret)
	if strings.Contains(string(redacted), string(secret)) {
		t.Fatal("expected RedactContent to never leak raw content")
	}
}

func TestInitSentryWithBlankDSNIsANoOp(t *testing.T) {
	if err := InitSentry("", "test"); err != nil {
		t.Fatalf("expected a blank dsn to be a no-op, got %v", err)
	}
}

func TestReportIfDurabilityIgnoresNonDurabilityErrors(t *testing.T) {
	// ReportIfDurability must not panic for errors outside the durability
	// class, even without Sentry initialized.
	ReportIfDurability(&synerrors.ValidationError{Reason: "x"})
	ReportIfDurability(nil)
}
