// Package output renders discovery results as JSON, either as one final
// document or as a stream of per-parameter events.
package output

import (
	"io"

	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// Writer defines the interface for result writers.
type Writer interface {
	// WriteResult writes the complete discovery result
	WriteResult(result *param.DiscoveryResult) error

	// WriteParameter writes a single inferred parameter (for streaming)
	WriteParameter(p *param.Parameter) error

	// WritePhase writes a completed pipeline phase (for streaming)
	WritePhase(event *PhaseEvent) error

	// WriteFailure writes a partial failure (for streaming)
	WriteFailure(failure *param.PartialFailure) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// PhaseEvent reports a completed pipeline phase in streaming mode.
type PhaseEvent struct {
	Phase      string `json:"phase"`
	DurationMs int64  `json:"duration_ms"`
	Requests   int    `json:"requests,omitempty"`
}

// Config holds output configuration.
type Config struct {
	Format string
	Pretty bool
	Stream bool
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case "json":
		return NewJSONWriter(w, config.Pretty, config.Stream)
	default:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	}
}
