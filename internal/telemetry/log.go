// Package telemetry wires zerolog structured logging (handed to the
// input adapters, rpc server, dispatcher and orchestrator) and the
// Prometheus metrics registry that the orchestrator and dispatcher
// update. It replaces the teacher's bare
// fmt.Fprintf-based output.Progress with a leveled logger, and gives the
// §6 metrics HTTP endpoint its counters and histograms.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide zerolog.Logger. verbose raises the
// level to debug, matching the --verbose CLI flag's intent.
func NewLogger(verbose bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(level).With().Timestamp().Str("component", "glasswally").Logger()
}
