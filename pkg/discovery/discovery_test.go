package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PentesterFlow/OpenProbe/internal/output"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/state"
	"github.com/PentesterFlow/OpenProbe/internal/transport"
)

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

// validationHandler answers like an endpoint with one required body field:
// requests whose body names username succeed, everything else gets a 422
// naming the missing field.
func validationHandler(preq *transport.ProbeRequest) (*transport.Response, error) {
	if strings.Contains(string(preq.Body), `"username"`) {
		return transport.JSONResponse(200, `{"id": 1}`), nil
	}
	return transport.JSONResponse(422, `{"error": "missing field 'username'"}`), nil
}

func newValidationDiscoverer(t *testing.T, extra ...Option) (*Discoverer, *transport.MockClient) {
	t.Helper()
	mock := transport.NewMockClient(validationHandler)
	opts := append([]Option{
		WithTarget("https://api.example.com/v1/users"),
		WithMethod("POST"),
		WithTransport(mock),
		WithOutput(io.Discard),
	}, extra...)
	d, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, mock
}

// =============================================================================
// Full Pipeline Tests
// =============================================================================

func TestRun_ValidationErrorDiscovery(t *testing.T) {
	d, mock := newValidationDiscoverer(t)

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Parameters) != 1 {
		t.Fatalf("len(Parameters) = %d, want 1", len(res.Parameters))
	}
	p := res.Parameters[0]
	if p.Name != "username" {
		t.Errorf("Name = %q, want %q", p.Name, "username")
	}
	if p.Location != param.LocationBody {
		t.Errorf("Location = %q, want %q", p.Location, param.LocationBody)
	}
	if p.Type != param.TypeString {
		t.Errorf("Type = %q, want %q", p.Type, param.TypeString)
	}
	if !p.Required {
		t.Error("Required = false, want true")
	}
	if !p.Nullable {
		t.Error("Nullable = false, want true")
	}
	// base + validation shape + volume + typed + required agreement.
	if !closeTo(p.Confidence, 1.0) {
		t.Errorf("Confidence = %v, want 1.0", p.Confidence)
	}
	// Five typed probes plus three location probes.
	if len(p.Evidence) != 8 {
		t.Errorf("len(Evidence) = %d, want 8", len(p.Evidence))
	}

	// One baseline, five typed probes, three location probes.
	if res.Meta.RequestCount != 9 {
		t.Errorf("RequestCount = %d, want 9", res.Meta.RequestCount)
	}
	if got := mock.RequestCount(); got != 9 {
		t.Errorf("mock.RequestCount() = %d, want 9", got)
	}
	if res.Meta.TotalParameters != 1 {
		t.Errorf("TotalParameters = %d, want 1", res.Meta.TotalParameters)
	}
	if res.Meta.PartialFailures != 0 {
		t.Errorf("PartialFailures = %d, want 0", res.Meta.PartialFailures)
	}

	if res.Meta.BaselineFingerprint == nil {
		t.Fatal("BaselineFingerprint = nil, want summary")
	}
	if res.Meta.BaselineFingerprint.StatusCode != 422 {
		t.Errorf("BaselineFingerprint.StatusCode = %d, want 422", res.Meta.BaselineFingerprint.StatusCode)
	}

	if res.Meta.FrameworkSignal == nil {
		t.Fatal("FrameworkSignal = nil, want signal")
	}
	if res.Meta.FrameworkSignal.Framework != param.FrameworkUnknown {
		t.Errorf("Framework = %q, want %q", res.Meta.FrameworkSignal.Framework, param.FrameworkUnknown)
	}

	if res.Meta.Classification == nil {
		t.Fatal("Classification = nil, want classification")
	}
	if res.Meta.Classification.Type != param.EndpointCRUD {
		t.Errorf("Classification.Type = %q, want %q", res.Meta.Classification.Type, param.EndpointCRUD)
	}
	if !closeTo(res.Meta.Classification.Confidence, 1.0) {
		t.Errorf("Classification.Confidence = %v, want 1.0", res.Meta.Classification.Confidence)
	}
	wantSignals := []string{"json_content", "validation_shape", "api_path"}
	if !reflect.DeepEqual(res.Meta.Classification.Signals, wantSignals) {
		t.Errorf("Classification.Signals = %v, want %v", res.Meta.Classification.Signals, wantSignals)
	}

	locRes, ok := res.Meta.LocationResolution["username"]
	if !ok {
		t.Fatal("LocationResolution missing username entry")
	}
	if locRes.Location != param.LocationBody {
		t.Errorf("resolved location = %q, want %q", locRes.Location, param.LocationBody)
	}
	if !closeTo(locRes.Confidence, 0.1) {
		t.Errorf("resolution confidence = %v, want 0.1", locRes.Confidence)
	}

	breakdown, ok := res.Meta.ConfidenceScoring["username"]
	if !ok {
		t.Fatal("ConfidenceScoring missing username entry")
	}
	for _, component := range []string{"base", "validation_shape", "evidence_volume", "typed", "required_agreement"} {
		if _, ok := breakdown.Components[component]; !ok {
			t.Errorf("Components missing %q", component)
		}
	}

	if mock.Closed() {
		t.Error("injected client was closed")
	}
}

func TestRun_Determinism(t *testing.T) {
	run := func() []byte {
		d, _ := newValidationDiscoverer(t)
		res, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		res.Meta.ExecutionTimeMs = 0
		res.Meta.PhaseTimingsMs = nil
		data, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		return data
	}

	first := run()
	second := run()
	if !bytes.Equal(first, second) {
		t.Errorf("results differ between identical runs:\n%s\n%s", first, second)
	}
}

func TestRun_HealthyEndpointSeedsNothing(t *testing.T) {
	mock := transport.NewMockClient(func(preq *transport.ProbeRequest) (*transport.Response, error) {
		return transport.JSONResponse(200, `{"status": "ok", "data": []}`), nil
	})
	d, err := New(
		WithTarget("https://api.example.com/v1/status"),
		WithMethod("POST"),
		WithTransport(mock),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Parameters == nil {
		t.Fatal("Parameters = nil, want empty slice")
	}
	if len(res.Parameters) != 0 {
		t.Errorf("len(Parameters) = %d, want 0", len(res.Parameters))
	}
	// Only the baseline went out: a healthy body seeds no candidates.
	if res.Meta.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", res.Meta.RequestCount)
	}
	if res.Meta.PartialFailures != 0 {
		t.Errorf("PartialFailures = %d, want 0", res.Meta.PartialFailures)
	}
	if res.Meta.Classification == nil {
		t.Fatal("Classification = nil, want classification")
	}
	wantSignals := []string{"json_content", "api_path"}
	if !reflect.DeepEqual(res.Meta.Classification.Signals, wantSignals) {
		t.Errorf("Classification.Signals = %v, want %v", res.Meta.Classification.Signals, wantSignals)
	}
	if !closeTo(res.Meta.Classification.Confidence, 2.0/3.0) {
		t.Errorf("Classification.Confidence = %v, want 2/3", res.Meta.Classification.Confidence)
	}
}

func TestRun_PathParameterShortCircuit(t *testing.T) {
	words := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(words, []byte("# identifiers\nid\n\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mock := transport.NewMockClient(func(preq *transport.ProbeRequest) (*transport.Response, error) {
		return transport.JSONResponse(200, `{"items": []}`), nil
	})
	d, err := New(
		WithTarget("https://api.example.com/items/{id}"),
		WithMethod("GET"),
		WithTransport(mock),
		WithWordlistFile(words),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Parameters) != 1 {
		t.Fatalf("len(Parameters) = %d, want 1", len(res.Parameters))
	}
	p := res.Parameters[0]
	if p.Name != "id" {
		t.Errorf("Name = %q, want %q", p.Name, "id")
	}
	if p.Location != param.LocationPath {
		t.Errorf("Location = %q, want %q", p.Location, param.LocationPath)
	}
	if p.Type != param.TypeUnknown {
		t.Errorf("Type = %q, want %q", p.Type, param.TypeUnknown)
	}
	if p.Required {
		t.Error("Required = true, want false")
	}
	if !closeTo(p.Confidence, 0.2) {
		t.Errorf("Confidence = %v, want 0.2", p.Confidence)
	}

	locRes, ok := res.Meta.LocationResolution["id"]
	if !ok {
		t.Fatal("LocationResolution missing id entry")
	}
	if locRes.Location != param.LocationPath {
		t.Errorf("resolved location = %q, want %q", locRes.Location, param.LocationPath)
	}
	if !closeTo(locRes.Confidence, 0.9) {
		t.Errorf("resolution confidence = %v, want 0.9", locRes.Confidence)
	}
	if len(locRes.Evidence) != 1 {
		t.Fatalf("len(resolution Evidence) = %d, want 1", len(locRes.Evidence))
	}
	if locRes.Evidence[0].Detail != "path segment {id}" {
		t.Errorf("Detail = %q, want %q", locRes.Evidence[0].Detail, "path segment {id}")
	}

	// One baseline plus five query probes; the URL shape resolved the
	// location without a single resolver request.
	if res.Meta.RequestCount != 6 {
		t.Errorf("RequestCount = %d, want 6", res.Meta.RequestCount)
	}
}

func TestRun_MultipartUploadClassification(t *testing.T) {
	mock := transport.NewMockClient(func(preq *transport.ProbeRequest) (*transport.Response, error) {
		if strings.Contains(string(preq.Body), "filename=") {
			return transport.JSONResponse(201, `{"uploaded": true}`), nil
		}
		return transport.JSONResponse(400, `{"error": "file upload rejected, missing required field 'file'"}`), nil
	})
	d, err := New(
		WithTarget("https://api.example.com/files/upload"),
		WithMethod("POST"),
		WithContentType("multipart/form-data"),
		WithTransport(mock),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Meta.Classification == nil {
		t.Fatal("Classification = nil, want classification")
	}
	if res.Meta.Classification.Type != param.EndpointUpload {
		t.Errorf("Classification.Type = %q, want %q", res.Meta.Classification.Type, param.EndpointUpload)
	}
	if !closeTo(res.Meta.Classification.Confidence, 1.0) {
		t.Errorf("Classification.Confidence = %v, want 1.0", res.Meta.Classification.Confidence)
	}
	wantSignals := []string{"multipart_support", "upload_path", "upload_text"}
	if !reflect.DeepEqual(res.Meta.Classification.Signals, wantSignals) {
		t.Errorf("Classification.Signals = %v, want %v", res.Meta.Classification.Signals, wantSignals)
	}

	if len(res.Parameters) != 1 {
		t.Fatalf("len(Parameters) = %d, want 1", len(res.Parameters))
	}
	p := res.Parameters[0]
	if p.Name != "file" {
		t.Errorf("Name = %q, want %q", p.Name, "file")
	}
	// Only the file strategy got through, so the type is settled even
	// though every location probe bounced off the same 400.
	if p.Type != param.TypeFile {
		t.Errorf("Type = %q, want %q", p.Type, param.TypeFile)
	}
	if !p.Required {
		t.Error("Required = false, want true")
	}
	if p.Nullable {
		t.Error("Nullable = true, want false")
	}
	if p.Location != param.LocationUnknown {
		t.Errorf("Location = %q, want %q", p.Location, param.LocationUnknown)
	}
	if !closeTo(p.Confidence, 0.8) {
		t.Errorf("Confidence = %v, want 0.8", p.Confidence)
	}

	breakdown := res.Meta.ConfidenceScoring["file"]
	if _, ok := breakdown.Components["evidence_volume"]; ok {
		t.Error("Components has evidence_volume, want absent with one usable entry")
	}
	for _, component := range []string{"validation_shape", "typed", "required_agreement"} {
		if _, ok := breakdown.Components[component]; !ok {
			t.Errorf("Components missing %q", component)
		}
	}

	if res.Meta.RequestCount != 9 {
		t.Errorf("RequestCount = %d, want 9", res.Meta.RequestCount)
	}
}

// =============================================================================
// Degraded Run Tests
// =============================================================================

func TestRun_DeadEndpoint(t *testing.T) {
	mock := transport.NewMockClient(func(preq *transport.ProbeRequest) (*transport.Response, error) {
		return nil, fmt.Errorf("connect: connection refused")
	})
	d, err := New(
		WithTarget("https://api.example.com/v1/users"),
		WithTransport(mock),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	if res.Parameters == nil {
		t.Fatal("Parameters = nil, want empty slice")
	}
	if len(res.Parameters) != 0 {
		t.Errorf("len(Parameters) = %d, want 0", len(res.Parameters))
	}
	if res.Meta.PartialFailures != 1 {
		t.Fatalf("PartialFailures = %d, want 1", res.Meta.PartialFailures)
	}
	failure := res.Meta.Failures[0]
	if failure.Phase != param.PhaseBaseline {
		t.Errorf("Phase = %q, want %q", failure.Phase, param.PhaseBaseline)
	}
	if failure.Operation != "baseline_request" {
		t.Errorf("Operation = %q, want %q", failure.Operation, "baseline_request")
	}
	if res.Meta.BaselineFingerprint != nil {
		t.Error("BaselineFingerprint set without a baseline")
	}
	if res.Meta.Classification != nil {
		t.Error("Classification set without a baseline")
	}
	if res.Meta.FrameworkSignal != nil {
		t.Error("FrameworkSignal set without a baseline")
	}
	if res.Meta.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", res.Meta.RequestCount)
	}
}

func TestRun_TruncationKeepsEvidence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	mock := transport.NewMockClient(func(preq *transport.ProbeRequest) (*transport.Response, error) {
		resp, err := validationHandler(preq)
		if calls.Add(1) == 4 {
			cancel()
		}
		return resp, err
	})
	d, err := New(
		WithTarget("https://api.example.com/v1/users"),
		WithMethod("POST"),
		WithTransport(mock),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The candidate survives truncation with whatever probes landed before
	// the cancel: three typed probes, no location probes.
	if len(res.Parameters) != 1 {
		t.Fatalf("len(Parameters) = %d, want 1", len(res.Parameters))
	}
	p := res.Parameters[0]
	if len(p.Evidence) != 3 {
		t.Errorf("len(Evidence) = %d, want 3", len(p.Evidence))
	}
	if p.Location != param.LocationUnknown {
		t.Errorf("Location = %q, want %q", p.Location, param.LocationUnknown)
	}
	if !closeTo(p.Confidence, 1.0) {
		t.Errorf("Confidence = %v, want 1.0", p.Confidence)
	}
	if p.Nullable {
		t.Error("Nullable = true, want false")
	}

	if res.Meta.RequestCount != 4 {
		t.Errorf("RequestCount = %d, want 4", res.Meta.RequestCount)
	}
	// Deadline exhaustion is not a failure, it only truncates.
	if res.Meta.PartialFailures != 0 {
		t.Errorf("PartialFailures = %d, want 0", res.Meta.PartialFailures)
	}

	locRes := res.Meta.LocationResolution["username"]
	if locRes.Location != param.LocationUnknown {
		t.Errorf("resolved location = %q, want %q", locRes.Location, param.LocationUnknown)
	}
	if !closeTo(locRes.Confidence, 0.1) {
		t.Errorf("resolution confidence = %v, want 0.1", locRes.Confidence)
	}
}

func TestRun_WordlistFileFallback(t *testing.T) {
	mock := transport.NewMockClient(func(preq *transport.ProbeRequest) (*transport.Response, error) {
		return nil, fmt.Errorf("connect: connection refused")
	})
	d, err := New(
		WithTarget("https://api.example.com/v1/users"),
		WithTransport(mock),
		WithWordlistFile("/nonexistent/openprobe-words.txt"),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Meta.PartialFailures != 2 {
		t.Fatalf("PartialFailures = %d, want 2", res.Meta.PartialFailures)
	}
	if res.Meta.Failures[0].Operation != "wordlist" {
		t.Errorf("Failures[0].Operation = %q, want %q", res.Meta.Failures[0].Operation, "wordlist")
	}
	if res.Meta.Failures[0].Phase != param.PhaseDifferential {
		t.Errorf("Failures[0].Phase = %q, want %q", res.Meta.Failures[0].Phase, param.PhaseDifferential)
	}
	if res.Meta.Failures[1].Operation != "baseline_request" {
		t.Errorf("Failures[1].Operation = %q, want %q", res.Meta.Failures[1].Operation, "baseline_request")
	}
}

func TestRun_InvalidTarget(t *testing.T) {
	d, err := New(
		WithTarget("not-a-url"),
		WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "invalid request") {
		t.Errorf("error = %q, want invalid request", err.Error())
	}
	if res != nil {
		t.Error("Run() returned a result alongside a fatal error")
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestRun_AlreadyRunning(t *testing.T) {
	d, _ := newValidationDiscoverer(t)
	d.running.Store(true)
	defer d.running.Store(false)

	if _, err := d.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want already running")
	} else if !strings.Contains(err.Error(), "already running") {
		t.Errorf("error = %q, want already running", err.Error())
	}
	if !d.IsRunning() {
		t.Error("IsRunning() = false, want true")
	}
}

func TestStop_BeforeRun(t *testing.T) {
	d, _ := newValidationDiscoverer(t)
	d.Stop()
	if d.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
}

func TestRun_SequentialRuns(t *testing.T) {
	d, mock := newValidationDiscoverer(t)

	for i := 0; i < 2; i++ {
		res, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
		if len(res.Parameters) != 1 {
			t.Errorf("Run() #%d len(Parameters) = %d, want 1", i+1, len(res.Parameters))
		}
		// The request counter starts fresh each run.
		if res.Meta.RequestCount != 9 {
			t.Errorf("Run() #%d RequestCount = %d, want 9", i+1, res.Meta.RequestCount)
		}
	}
	if d.IsRunning() {
		t.Error("IsRunning() = true after runs finished")
	}
	if mock.Closed() {
		t.Error("injected client was closed between runs")
	}
}

// =============================================================================
// Output and Persistence Tests
// =============================================================================

func TestRun_WritesFinalDocument(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newValidationDiscoverer(t, WithOutput(&buf))

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var doc param.DiscoveryResult
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc.URL != "https://api.example.com/v1/users" {
		t.Errorf("URL = %q, want target", doc.URL)
	}
	if len(doc.Parameters) != 1 {
		t.Errorf("len(Parameters) = %d, want 1", len(doc.Parameters))
	}
}

func TestRun_StreamEvents(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newValidationDiscoverer(t,
		WithOutput(&buf),
		WithStreamMode(true),
		WithPrettyOutput(false),
	)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"type":"phase"`) {
		t.Error("stream output missing phase events")
	}
	if !strings.Contains(out, `"type":"parameter"`) {
		t.Error("stream output missing parameter events")
	}

	// The stream still ends with the complete result document.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var doc param.DiscoveryResult
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &doc); err != nil {
		t.Fatalf("Unmarshal(final line) error = %v", err)
	}
	if doc.Meta.TotalParameters != 1 {
		t.Errorf("TotalParameters = %d, want 1", doc.Meta.TotalParameters)
	}
}

func TestRun_WritesOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	mock := transport.NewMockClient(validationHandler)
	d, err := New(
		WithTarget("https://api.example.com/v1/users"),
		WithMethod("POST"),
		WithTransport(mock),
		WithOutputFile(path),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc param.DiscoveryResult
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(doc.Parameters) != 1 {
		t.Errorf("len(Parameters) = %d, want 1", len(doc.Parameters))
	}
}

func TestRun_PersistsToStore(t *testing.T) {
	st := state.NewMemoryStore()
	d, _ := newValidationDiscoverer(t, WithStore(st))

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, err := st.Load("https://api.example.com/v1/users", "POST")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec == nil {
		t.Fatal("Load() = nil, want stored record")
	}
	if rec.Result.Meta.TotalParameters != 1 {
		t.Errorf("stored TotalParameters = %d, want 1", rec.Result.Meta.TotalParameters)
	}
	if rec.StoredAt.IsZero() {
		t.Error("StoredAt is zero")
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	var stats output.ProgressStats
	d, _ := newValidationDiscoverer(t, WithProgress(func(s output.ProgressStats) {
		stats.Parameters += s.Parameters
		stats.Phases += s.Phases
		stats.Failures += s.Failures
	}))

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.Phases != 6 {
		t.Errorf("progress phases = %d, want 6", stats.Phases)
	}
	if stats.Parameters != 1 {
		t.Errorf("progress parameters = %d, want 1", stats.Parameters)
	}
	if stats.Failures != 0 {
		t.Errorf("progress failures = %d, want 0", stats.Failures)
	}
}
