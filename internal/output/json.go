package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// JSONWriter writes output in JSON format.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteResult writes the complete discovery result. It writes the bare
// document in both modes so a streamed run still ends with the full result.
func (j *JSONWriter) WriteResult(result *param.DiscoveryResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}

	if err != nil {
		return err
	}

	_, err = j.writer.Write(data)
	if err != nil {
		return err
	}

	_, err = j.writer.Write([]byte("\n"))
	return err
}

// WriteParameter writes a single inferred parameter in streaming mode.
func (j *JSONWriter) WriteParameter(p *param.Parameter) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeStreamEvent(StreamEvent{
		Type: "parameter",
		Data: p,
	})
}

// WritePhase writes a completed pipeline phase in streaming mode.
func (j *JSONWriter) WritePhase(event *PhaseEvent) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeStreamEvent(StreamEvent{
		Type: "phase",
		Data: event,
	})
}

// WriteFailure writes a partial failure in streaming mode.
func (j *JSONWriter) WriteFailure(failure *param.PartialFailure) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeStreamEvent(StreamEvent{
		Type: "failure",
		Data: failure,
	})
}

// writeStreamEvent writes a stream event.
func (j *JSONWriter) writeStreamEvent(event StreamEvent) error {
	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(event, "", "  ")
	} else {
		data, err = json.Marshal(event)
	}

	if err != nil {
		return err
	}

	_, err = j.writer.Write(data)
	if err != nil {
		return err
	}

	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// StreamEvent represents a streaming output event.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProgressWriter wraps a writer and reports each written item to a callback.
// The callback fires even when the wrapped writer suppresses stream events,
// so a quiet run can still drive a live progress display.
type ProgressWriter struct {
	Writer
	onProgress func(stats ProgressStats)
}

// ProgressStats carries per-write deltas for progress callbacks.
type ProgressStats struct {
	Parameters int
	Phases     int
	Failures   int
}

// NewProgressWriter creates a writer that reports progress.
func NewProgressWriter(w Writer, onProgress func(ProgressStats)) *ProgressWriter {
	return &ProgressWriter{
		Writer:     w,
		onProgress: onProgress,
	}
}

// WriteParameter writes a parameter and updates progress.
func (p *ProgressWriter) WriteParameter(parameter *param.Parameter) error {
	if p.onProgress != nil {
		p.onProgress(ProgressStats{Parameters: 1})
	}
	return p.Writer.WriteParameter(parameter)
}

// WritePhase writes a phase event and updates progress.
func (p *ProgressWriter) WritePhase(event *PhaseEvent) error {
	if p.onProgress != nil {
		p.onProgress(ProgressStats{Phases: 1})
	}
	return p.Writer.WritePhase(event)
}

// WriteFailure writes a failure and updates progress.
func (p *ProgressWriter) WriteFailure(failure *param.PartialFailure) error {
	if p.onProgress != nil {
		p.onProgress(ProgressStats{Failures: 1})
	}
	return p.Writer.WriteFailure(failure)
}
