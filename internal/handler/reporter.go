package handler

import (
	"fmt"
	"log"
)

// ─────────────────────────────────────────────────────────────
// Reporter — the diagnostic side channel
// ─────────────────────────────────────────────────────────────

// Reporter receives one human-readable status line per operation.
// It is informational only and not part of the programmatic contract.
type Reporter interface {
	Reportf(format string, args ...any)
}

// LogReporter writes status lines through the standard logger.
type LogReporter struct {
	Prefix string
}

func (r *LogReporter) Reportf(format string, args ...any) {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "datahandler"
	}
	log.Printf(prefix+": "+format, args...)
}

// MockReporter is a test-friendly Reporter that records all status lines.
type MockReporter struct {
	Lines []string
}

func (m *MockReporter) Reportf(format string, args ...any) {
	m.Lines = append(m.Lines, fmt.Sprintf(format, args...))
}
