// Package discovery wires the probe pipeline end to end: baseline
// fingerprinting, differential probing, location framing, framework
// detection, endpoint classification, and confidence scoring. It is the
// public entry point for embedding parameter discovery in other tools.
package discovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/OpenProbe/internal/classify"
	"github.com/PentesterFlow/OpenProbe/internal/differential"
	"github.com/PentesterFlow/OpenProbe/internal/fingerprint"
	"github.com/PentesterFlow/OpenProbe/internal/framework"
	"github.com/PentesterFlow/OpenProbe/internal/location"
	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/metrics"
	"github.com/PentesterFlow/OpenProbe/internal/output"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/scoring"
	"github.com/PentesterFlow/OpenProbe/internal/state"
	"github.com/PentesterFlow/OpenProbe/internal/transport"
)

// Result is the final discovery document.
type Result = param.DiscoveryResult

// Discoverer is the main discovery orchestrator. It runs the pipeline
// phases strictly in order against a single endpoint; a phase consumes
// whatever its predecessors produced and a failed phase degrades the
// result instead of aborting the run.
type Discoverer struct {
	config *Config

	client     transport.Client
	counter    *countingClient
	ownsClient bool
	detector   *framework.Detector
	generator  *differential.Generator
	engine     *differential.Engine
	resolver   *location.Resolver
	classifier *classify.Classifier
	scorer     *scoring.Scorer
	store      state.Store
	ownsStore  bool
	output     output.Writer
	ownsOutput bool

	outputWriter io.Writer
	onProgress   func(output.ProgressStats)
	log          *logger.Logger
	collector    *metrics.Collector

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// New creates a new discoverer with the given options.
func New(opts ...Option) (*Discoverer, error) {
	d := &Discoverer{
		config: DefaultConfig(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Validate config
	if err := d.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger based on config unless one was injected
	if d.log == nil {
		logLevel := logger.InfoLevel
		if d.config.Debug {
			logLevel = logger.DebugLevel
		} else if !d.config.Verbose {
			logLevel = logger.WarnLevel
		}
		d.log = logger.New(logger.Config{
			Level:     logLevel,
			Pretty:    true,
			Component: "discovery",
		})
	}

	if d.collector == nil {
		d.collector = metrics.New()
	}

	return d, nil
}

// initialize sets up all pipeline components.
func (d *Discoverer) initialize(req *param.Request) error {
	var err error

	// Create probe client unless one was injected
	if d.client == nil {
		cfg := transport.DefaultConfig()
		cfg.Headers = d.config.Headers
		cfg.Auth = req.Auth
		cfg.RequestsPerSecond = d.config.RateLimit.RequestsPerSecond
		cfg.Burst = d.config.RateLimit.Burst
		client := transport.New(cfg)
		client.SetMetrics(d.collector)
		d.client = client
		d.ownsClient = true
	}
	d.counter = &countingClient{inner: d.client}

	// Create probe pipeline components
	d.detector = framework.NewDetector()
	d.generator = differential.NewGenerator()
	d.classifier = classify.NewClassifier(d.detector)

	d.engine = differential.NewEngine(d.counter, differential.Config{
		Workers:  d.config.Workers,
		ProbeCap: d.config.RequestCap,
	})
	d.engine.SetLogger(d.log.WithComponent("differential"))
	d.engine.SetMetrics(d.collector)

	d.resolver = location.NewResolver(d.counter, location.Config{
		ProbeCap: d.config.RequestCap,
	})
	d.resolver.SetLogger(d.log)
	d.resolver.SetMetrics(d.collector)
	// Share one breaker so connection failures seen anywhere halt probing
	// everywhere.
	d.resolver.SetBreaker(d.engine.Breaker())

	d.scorer = scoring.NewScorer()
	d.scorer.SetLogger(d.log)

	// Create history store
	if d.store == nil && d.config.State.Enabled && d.config.State.FilePath != "" {
		d.store, err = state.NewBoltStore(d.config.State.FilePath)
		if err != nil {
			return fmt.Errorf("failed to create history store: %w", err)
		}
		d.ownsStore = true
	}

	// Setup output writer
	if d.outputWriter == nil {
		if d.config.Output.FilePath != "" {
			f, err := os.Create(d.config.Output.FilePath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			d.outputWriter = f
			d.ownsOutput = true
		} else {
			d.outputWriter = os.Stdout
		}
	}

	d.output = output.NewWriter(d.outputWriter, output.Config{
		Format: d.config.Output.Format,
		Pretty: d.config.Output.Pretty,
		Stream: d.config.Output.Stream,
	})
	if d.onProgress != nil {
		d.output = output.NewProgressWriter(d.output, d.onProgress)
	}

	return nil
}

// runState accumulates everything a run produces. It lives for exactly one
// Run call and only the orchestrator touches it.
type runState struct {
	req         *param.Request
	baseline    fingerprint.Fingerprint
	baselineOK  bool
	signal      param.FrameworkSignal
	class       param.Classification
	classOK     bool
	candidates  []param.Candidate
	resolutions map[string]param.LocationResolution
	breakdowns  map[string]param.ScoreBreakdown
	parameters  []param.Parameter
	failures    []param.PartialFailure
	timings     map[string]int64
}

func newRunState(req *param.Request) *runState {
	return &runState{
		req:         req,
		resolutions: make(map[string]param.LocationResolution),
		breakdowns:  make(map[string]param.ScoreBreakdown),
		parameters:  make([]param.Parameter, 0),
		timings:     make(map[string]int64),
	}
}

// Run executes the discovery pipeline. A malformed target or unsupported
// method is the only fatal condition; everything after that degrades into
// partial failures on an always-valid result. The run is bounded by the
// configured time budget and by ctx, whichever ends first.
func (d *Discoverer) Run(ctx context.Context) (*Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("discovery is already running")
	}
	defer d.running.Store(false)

	req := d.config.BuildRequest()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if err := d.initialize(req); err != nil {
		return nil, err
	}
	defer d.cleanup()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	start := time.Now()
	rs := newRunState(req)

	d.log.WithURL(req.URL).WithField("method", req.Method).Info("Starting discovery")

	if d.config.Wordlist.Enabled {
		d.loadWordlist(rs)
	}

	phases := []struct {
		name string
		run  func()
	}{
		{param.PhaseBaseline, func() { d.phaseBaseline(runCtx, rs) }},
		{param.PhaseDifferential, func() { d.phaseDifferential(runCtx, rs) }},
		{param.PhaseLocation, func() { d.phaseLocation(runCtx, rs) }},
		{param.PhaseFramework, func() { d.phaseFramework(rs) }},
		{param.PhaseClassification, func() { d.phaseClassification(rs) }},
		{param.PhaseScoring, func() { d.phaseScoring(rs) }},
	}
	for _, phase := range phases {
		phaseStart := time.Now()
		requestsBefore := d.counter.Count()
		phase.run()
		elapsed := time.Since(phaseStart)
		rs.timings[phase.name] = elapsed.Milliseconds()
		d.collector.RecordPhaseDuration(phase.name, elapsed)
		d.log.PhaseEvent(phase.name, elapsed)
		d.writeEvent(d.output.WritePhase(&output.PhaseEvent{
			Phase:      phase.name,
			DurationMs: elapsed.Milliseconds(),
			Requests:   int(d.counter.Count() - requestsBefore),
		}))
	}

	result := d.assemble(rs, start)

	if d.store != nil {
		if err := d.store.Save(result); err != nil {
			d.log.WithError(err).Warn("Failed to persist result")
		}
	}

	if err := d.output.WriteResult(result); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}

	return result, nil
}

// phaseBaseline captures the unmutated reference response. Without it the
// later network phases have nothing to diff against and are skipped.
func (d *Discoverer) phaseBaseline(ctx context.Context, rs *runState) {
	preq, err := transport.BuildBaseline(rs.req)
	if err != nil {
		d.recordFailure(rs, param.PhaseBaseline, "build_baseline", err.Error())
		return
	}

	resp, err := d.counter.Send(ctx, preq)
	if err != nil {
		d.recordFailure(rs, param.PhaseBaseline, "baseline_request", err.Error())
		return
	}

	fp, err := fingerprint.Take(resp)
	if err != nil {
		d.recordFailure(rs, param.PhaseBaseline, "fingerprint", err.Error())
		return
	}

	rs.baseline = fp
	rs.baselineOK = true
	d.log.Event(logger.InfoLevel).
		Int("status", fp.Status).
		Str("content_type", fp.ContentType).
		Int("body_length", fp.BodyLength).
		Msg("Baseline captured")
}

// phaseDifferential seeds candidates from the baseline and probes each one
// with typed mutations. Candidate generation needs a framework signal and a
// provisional endpoint class; both come from pure functions over the
// baseline, so computing them here and again in their own phases yields
// identical values.
func (d *Discoverer) phaseDifferential(ctx context.Context, rs *runState) {
	if !rs.baselineOK {
		d.log.Warn("Skipping differential probing, no baseline fingerprint")
		return
	}

	rs.signal = d.detector.Detect(rs.baseline)
	prelim := d.classifier.Classify(rs.baseline, 0, rs.signal, rs.req)

	candidates := d.generator.Generate(rs.baseline, rs.signal)
	for _, cand := range candidates {
		d.collector.RecordCandidate()
		d.log.CandidateEvent(cand.Name, cand.Source)
	}
	if len(candidates) == 0 {
		d.log.Info("No candidates seeded, endpoint exposes nothing to probe")
		return
	}

	res := d.engine.Run(ctx, rs.req, rs.baseline, prelim.Type, candidates)
	rs.candidates = res.Candidates
	d.addFailures(rs, res.PartialFailures)
}

// phaseLocation resolves where each surviving candidate lives. The resolver
// self-truncates past the deadline, so every candidate still gets a verdict,
// if only the unknown floor.
func (d *Discoverer) phaseLocation(ctx context.Context, rs *runState) {
	if !rs.baselineOK {
		return
	}

	for _, cand := range rs.candidates {
		res, fails := d.resolver.Resolve(ctx, rs.req, rs.baseline, cand)
		rs.resolutions[cand.Name] = res
		d.addFailures(rs, fails)
	}
}

// phaseFramework records the canonical framework verdict for the result
// meta. Detection is deterministic over the baseline, so this repeats what
// candidate seeding already computed.
func (d *Discoverer) phaseFramework(rs *runState) {
	if !rs.baselineOK {
		return
	}

	rs.signal = d.detector.Detect(rs.baseline)
	d.log.Event(logger.InfoLevel).
		Str("framework", rs.signal.Framework).
		Float64("confidence", rs.signal.Confidence).
		Msg("Framework detection complete")
}

// phaseClassification types the endpoint now that the real candidate count
// is known.
func (d *Discoverer) phaseClassification(rs *runState) {
	if !rs.baselineOK {
		return
	}

	rs.class = d.classifier.Classify(rs.baseline, len(rs.candidates), rs.signal, rs.req)
	rs.classOK = true
	d.log.Event(logger.InfoLevel).
		Str("type", string(rs.class.Type)).
		Float64("confidence", rs.class.Confidence).
		Msg("Endpoint classified")
}

// phaseScoring turns probed candidates into scored parameters, preserving
// first-seen candidate order.
func (d *Discoverer) phaseScoring(rs *runState) {
	for _, cand := range rs.candidates {
		p, breakdown := d.scorer.Score(cand, rs.resolutions[cand.Name], rs.class, rs.signal)
		rs.parameters = append(rs.parameters, p)
		rs.breakdowns[cand.Name] = breakdown
		d.collector.RecordParameter()
		d.writeEvent(d.output.WriteParameter(&rs.parameters[len(rs.parameters)-1]))
	}
}

// assemble builds the final result document from whatever the phases
// produced. It always returns a structurally valid result.
func (d *Discoverer) assemble(rs *runState, start time.Time) *Result {
	meta := param.Meta{
		TotalParameters:     len(rs.parameters),
		PartialFailures:     len(rs.failures),
		Failures:            rs.failures,
		ExecutionTimeMs:     time.Since(start).Milliseconds(),
		DiscoveryVersion:    param.DiscoveryVersion,
		OrchestrationPhases: param.OrchestrationPhases(),
		PhaseTimingsMs:      rs.timings,
		RequestCount:        int(d.counter.Count()),
		TimeBudgetSeconds:   rs.req.TimeoutSeconds,
	}

	if rs.baselineOK {
		summary := rs.baseline.Summary()
		meta.BaselineFingerprint = &summary
		meta.FrameworkSignal = &rs.signal
	}
	if rs.classOK {
		meta.Classification = &rs.class
	}
	if len(rs.resolutions) > 0 {
		meta.LocationResolution = rs.resolutions
	}
	if len(rs.breakdowns) > 0 {
		meta.ConfidenceScoring = rs.breakdowns
	}

	return &Result{
		URL:        rs.req.URL,
		Method:     rs.req.Method,
		Parameters: rs.parameters,
		Meta:       meta,
	}
}

// loadWordlist hands candidate names to the generator. A broken wordlist
// file degrades to the built-in list instead of failing the run.
func (d *Discoverer) loadWordlist(rs *runState) {
	if d.config.Wordlist.Path == "" {
		d.generator.SetWordlist(differential.CommonParameters())
		return
	}

	data, err := os.ReadFile(d.config.Wordlist.Path)
	if err != nil {
		d.recordFailure(rs, param.PhaseDifferential, "wordlist", err.Error())
		d.generator.SetWordlist(differential.CommonParameters())
		return
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	d.generator.SetWordlist(names)
}

func (d *Discoverer) recordFailure(rs *runState, phase, operation, message string) {
	failure := param.PartialFailure{Phase: phase, Operation: operation, Message: message}
	rs.failures = append(rs.failures, failure)
	d.collector.RecordPartialFailure()
	d.log.WithField("phase", phase).WithField("operation", operation).Warn(message)
	d.writeEvent(d.output.WriteFailure(&failure))
}

func (d *Discoverer) addFailures(rs *runState, failures []param.PartialFailure) {
	for i := range failures {
		rs.failures = append(rs.failures, failures[i])
		d.collector.RecordPartialFailure()
		d.writeEvent(d.output.WriteFailure(&failures[i]))
	}
}

// writeEvent drains stream write errors. A broken stream never fails the
// run; the final WriteResult surfaces persistent writer trouble.
func (d *Discoverer) writeEvent(err error) {
	if err != nil {
		d.log.WithError(err).Debug("Failed to write stream event")
	}
}

// cleanup releases whatever initialize created and resets the fields so a
// later Run rebuilds them. Injected clients, stores, and writers stay open
// for their owners.
func (d *Discoverer) cleanup() {
	if d.output != nil {
		d.output.Flush()
		if d.ownsOutput {
			d.output.Close()
			d.outputWriter = nil
			d.ownsOutput = false
		}
	}
	if d.ownsClient && d.client != nil {
		d.client.Close()
		d.client = nil
		d.ownsClient = false
	}
	if d.ownsStore && d.store != nil {
		d.store.Close()
		d.store = nil
		d.ownsStore = false
	}
}

// Stop cancels an in-flight run. In-flight probes are abandoned, evidence
// collected so far still flows through scoring and assembly.
func (d *Discoverer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// IsRunning reports whether a run is in flight.
func (d *Discoverer) IsRunning() bool {
	return d.running.Load()
}

// Metrics returns the metrics collector.
func (d *Discoverer) Metrics() *metrics.Collector {
	return d.collector
}

// countingClient wraps a probe client with an outbound request counter.
// The Client interface exposes no request count, so the orchestrator keeps
// its own to report exact meta for injected clients too.
type countingClient struct {
	inner transport.Client
	count atomic.Int64
}

func (c *countingClient) Send(ctx context.Context, req *transport.ProbeRequest) (*transport.Response, error) {
	c.count.Add(1)
	return c.inner.Send(ctx, req)
}

func (c *countingClient) Close() {
	c.inner.Close()
}

func (c *countingClient) Count() int64 {
	return c.count.Load()
}
