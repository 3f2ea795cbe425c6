package differential

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PentesterFlow/OpenProbe/internal/errors"
	"github.com/PentesterFlow/OpenProbe/internal/fingerprint"
	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/metrics"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/transport"
)

const (
	// DefaultWorkers is the candidate-level concurrency.
	DefaultWorkers = 4
	// DefaultProbeCap bounds requests spent on a single candidate.
	DefaultProbeCap = 5
)

// Config configures the probing engine.
type Config struct {
	Workers          int
	ProbeCap         int
	FailureThreshold int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          DefaultWorkers,
		ProbeCap:         DefaultProbeCap,
		FailureThreshold: errors.DefaultFailureThreshold,
	}
}

// Engine sends typed probes per candidate and attaches one evidence entry
// per executed probe. Probe outcomes are never errors: connection failures
// degrade to partial failures and the run keeps going.
type Engine struct {
	client    transport.Client
	workers   int
	probeCap  int
	breaker   *errors.Breaker
	log       *logger.Logger
	collector *metrics.Collector
}

// NewEngine creates an engine over the given transport.
func NewEngine(client transport.Client, cfg Config) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ProbeCap < 1 {
		cfg.ProbeCap = DefaultProbeCap
	}
	return &Engine{
		client:    client,
		workers:   cfg.Workers,
		probeCap:  cfg.ProbeCap,
		breaker:   errors.NewBreaker(cfg.FailureThreshold),
		log:       logger.Global().WithComponent("differential"),
		collector: metrics.Global(),
	}
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(l *logger.Logger) {
	if l != nil {
		e.log = l
	}
}

// SetMetrics replaces the metrics collector.
func (e *Engine) SetMetrics(c *metrics.Collector) {
	if c != nil {
		e.collector = c
	}
}

// SetBreaker shares a breaker across probing phases.
func (e *Engine) SetBreaker(b *errors.Breaker) {
	if b != nil {
		e.breaker = b
	}
}

// Breaker exposes the engine breaker for shared use.
func (e *Engine) Breaker() *errors.Breaker {
	return e.breaker
}

// Result carries the probed candidates and the partial failures hit on the
// way. Every input candidate appears in Candidates, evidence or not.
type Result struct {
	Candidates      []param.Candidate
	PartialFailures []param.PartialFailure
}

// Run probes every candidate against the baseline. Candidates run through a
// worker pool; probes for one candidate stay sequential. Output order, for
// candidates and partial failures both, matches input order regardless of
// scheduling.
func (e *Engine) Run(ctx context.Context, req *param.Request, baseline fingerprint.Fingerprint, class param.EndpointType, candidates []param.Candidate) Result {
	if len(candidates) == 0 {
		return Result{}
	}

	plan := strategiesFor(class)
	if len(plan) > e.probeCap {
		plan = plan[:e.probeCap]
	}

	res := Result{Candidates: make([]param.Candidate, len(candidates))}
	candFails := make([][]param.PartialFailure, len(candidates))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				res.Candidates[idx], candFails[idx] = e.probeCandidate(ctx, workerID, req, baseline, plan, candidates[idx])
			}
		}(w)
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, fails := range candFails {
		res.PartialFailures = append(res.PartialFailures, fails...)
	}
	return res
}

// probeCandidate runs the strategy plan for one candidate. Deadline or cap
// exhaustion finalizes with whatever evidence was collected; a tripped
// breaker records each unsent probe as a skip.
func (e *Engine) probeCandidate(ctx context.Context, workerID int, req *param.Request, baseline fingerprint.Fingerprint, plan []strategy, cand param.Candidate) (param.Candidate, []param.PartialFailure) {
	loc := probeLocation(req)
	var fails []param.PartialFailure
	fail := func(operation, format string, args ...any) {
		fails = append(fails, param.PartialFailure{
			Phase:     param.PhaseDifferential,
			Operation: operation,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	for _, strat := range plan {
		if ctx.Err() != nil {
			break
		}
		if !e.breaker.Allow() {
			e.collector.RecordProbeSkipped()
			fail("probe_skipped", "%s/%s: breaker open", cand.Name, strat.Name)
			continue
		}

		preq, err := e.buildProbe(req, loc, cand.Name, strat)
		if err != nil {
			fail("build_probe", "%s/%s: %v", cand.Name, strat.Name, err)
			continue
		}

		e.collector.RecordProbe()
		e.log.ProbeEvent(logger.DebugLevel, cand.Name, strat.Name, workerID).Msg("Sending probe")

		resp, err := e.client.Send(ctx, preq)
		if err != nil {
			if errors.IsConnectionError(err) {
				if e.breaker.RecordFailure() {
					e.collector.RecordBreakerTrip()
					e.log.WithCandidate(cand.Name).Warn("Breaker tripped, skipping remaining probes")
				}
			}
			fail("probe", "%s/%s: %v", cand.Name, strat.Name, err)
			continue
		}
		e.breaker.RecordSuccess()

		probeFP, err := fingerprint.Take(resp)
		if err != nil {
			fail("fingerprint", "%s/%s: %v", cand.Name, strat.Name, err)
			continue
		}

		diff := fingerprint.Compare(baseline, probeFP)
		ev := diff.Evidence(strat.location(loc), strat.Name, cand.Source, probeFP.Status)
		ev.RequiredHint = requiredHint(probeFP.BodyText)
		cand.Evidence = append(cand.Evidence, ev)
	}

	return cand, fails
}

// buildProbe encodes the request for one strategy. The file strategy is a
// multipart upload; everything else mutates a single key in the carrier.
func (e *Engine) buildProbe(req *param.Request, loc param.Location, name string, strat strategy) (*transport.ProbeRequest, error) {
	if strat.Name == StrategyFile {
		return transport.BuildUploadProbe(req, name)
	}
	return transport.BuildProbe(req, loc, name, strat.Value)
}

// probeLocation picks the carrier a differential probe mutates: body when
// the method takes one, query otherwise.
func probeLocation(req *param.Request) param.Location {
	if req.Method == "GET" {
		return param.LocationQuery
	}
	return param.LocationBody
}

// Strategy names as they appear in evidence entries.
const (
	StrategyString  = "string"
	StrategyNumber  = "number"
	StrategyBoolean = "boolean"
	StrategyObject  = "object"
	StrategyNull    = "null"
	StrategyFile    = "file"
)

// strategy is one typed probe against a candidate.
type strategy struct {
	Name  string
	Type  param.ValueType
	Value any
}

// location returns the carrier the strategy actually uses. File probes are
// always multipart bodies.
func (s strategy) location(loc param.Location) param.Location {
	if s.Name == StrategyFile {
		return param.LocationBody
	}
	return loc
}

var baseStrategies = []strategy{
	{Name: StrategyString, Type: param.TypeString, Value: "test"},
	{Name: StrategyNumber, Type: param.TypeNumber, Value: 1},
	{Name: StrategyBoolean, Type: param.TypeBoolean, Value: true},
	{Name: StrategyObject, Type: param.TypeObject, Value: map[string]any{"key": "value"}},
	{Name: StrategyNull, Type: param.TypeUnknown, Value: nil},
}

var fileStrategy = strategy{Name: StrategyFile, Type: param.TypeFile}

// strategiesFor returns the probe plan for the endpoint class. Upload
// endpoints lead with the file strategy; the probe cap trims the tail.
func strategiesFor(class param.EndpointType) []strategy {
	if class == param.EndpointUpload {
		plan := make([]strategy, 0, len(baseStrategies)+1)
		plan = append(plan, fileStrategy)
		return append(plan, baseStrategies...)
	}
	return append([]strategy(nil), baseStrategies...)
}

// StrategyType maps an evidence strategy name to the value type it implies.
func StrategyType(name string) param.ValueType {
	switch name {
	case StrategyString:
		return param.TypeString
	case StrategyNumber:
		return param.TypeNumber
	case StrategyBoolean:
		return param.TypeBoolean
	case StrategyObject:
		return param.TypeObject
	case StrategyFile:
		return param.TypeFile
	}
	return param.TypeUnknown
}

// requiredIndicators are response phrases that mark a field required.
var requiredIndicators = []string{
	"is required",
	"is mandatory",
	"must be provided",
	"cannot be null",
	"cannot be empty",
	"missing required",
}

// requiredHint reports whether the response body carries a required-field
// validation phrase.
func requiredHint(body string) bool {
	lower := strings.ToLower(body)
	for _, ind := range requiredIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
