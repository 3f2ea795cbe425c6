// Package location resolves where a candidate parameter is carried:
// query string, request body, URL path, or header. Path placement is
// decided statically from the URL shape; the other locations are probed
// and scored by how the endpoint reacts to a benign test value.
package location

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/OpenProbe/internal/errors"
	"github.com/PentesterFlow/OpenProbe/internal/fingerprint"
	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/metrics"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/transport"
)

// Score weights for location signals.
const (
	explicitScore   = 0.5
	genericScore    = 0.1
	headerScore     = 0.6
	pathScore       = 0.9
	strongSignal    = 0.5
	conflictPenalty = 0.3
	floorConfidence = 0.1
)

// Strategy names recorded on resolver evidence.
const (
	StrategyQueryProbe  = "query-probe"
	StrategyBodyProbe   = "body-probe"
	StrategyHeaderProbe = "header-probe"
	StrategyPathPattern = "path-pattern"
)

// EvidenceSource tags evidence entries produced by the resolver.
const EvidenceSource = "location-resolver"

// DetailValidationLoc prefixes evidence details recorded when a
// machine-readable loc array named the probed carrier.
const DetailValidationLoc = "validation loc names "

// probeValue is the benign value carried by every location probe.
const probeValue = "test"

// maxProbes is the full probe plan size: query, body, header.
const maxProbes = 3

// queryMarkers are response phrases that explicitly reference the query
// string. Matching is done against the lowercased body.
var queryMarkers = []string{
	"query parameter",
	"query string",
	"url parameter",
	"querystring",
}

// bodyMarkers are response phrases that explicitly reference the request
// body.
var bodyMarkers = []string{
	"request body",
	"body parameter",
	"json body",
	"form field",
	"payload",
}

var (
	locQueryPattern = regexp.MustCompile(`\[\s*"query"\s*,`)
	locBodyPattern  = regexp.MustCompile(`\[\s*"body"\s*,`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Config holds resolver tuning.
type Config struct {
	// ProbeCap bounds probe requests per candidate. The orchestrator
	// passes the same cap the differential engine runs under.
	ProbeCap int

	// FailureThreshold trips the breaker after this many consecutive
	// connection failures when no shared breaker is installed.
	FailureThreshold int
}

// DefaultConfig returns resolver defaults.
func DefaultConfig() Config {
	return Config{
		ProbeCap:         maxProbes,
		FailureThreshold: errors.DefaultFailureThreshold,
	}
}

// Resolver decides the best location for each candidate parameter.
type Resolver struct {
	client    transport.Client
	probeCap  int
	breaker   *errors.Breaker
	log       *logger.Logger
	collector *metrics.Collector
}

// NewResolver creates a resolver probing through the given client.
func NewResolver(client transport.Client, cfg Config) *Resolver {
	if cfg.ProbeCap < 1 {
		cfg.ProbeCap = maxProbes
	}
	return &Resolver{
		client:    client,
		probeCap:  cfg.ProbeCap,
		breaker:   errors.NewBreaker(cfg.FailureThreshold),
		log:       logger.Global().WithComponent("location"),
		collector: metrics.Global(),
	}
}

// SetLogger replaces the resolver's logger.
func (r *Resolver) SetLogger(l *logger.Logger) {
	if l != nil {
		r.log = l.WithComponent("location")
	}
}

// SetMetrics replaces the resolver's metrics collector.
func (r *Resolver) SetMetrics(c *metrics.Collector) {
	if c != nil {
		r.collector = c
	}
}

// SetBreaker installs a shared breaker so connection failures observed
// by other phases stop location probes too.
func (r *Resolver) SetBreaker(b *errors.Breaker) {
	if b != nil {
		r.breaker = b
	}
}

// Resolve determines the best location for one candidate. A URL whose
// shape already carries the name resolves to path statically, with no
// probe traffic. Otherwise up to three probes are sent and scored by the
// reaction they provoke; conflicting strong signals are both penalized
// and the strictly higher raw score keeps the location. The verdict is
// never an error: with no usable signal anywhere the candidate resolves
// to unknown at the confidence floor.
func (r *Resolver) Resolve(ctx context.Context, req *param.Request, baseline fingerprint.Fingerprint, cand param.Candidate) (param.LocationResolution, []param.PartialFailure) {
	if seg, ok := PathMatch(req.URL, cand.Name); ok {
		return param.LocationResolution{
			Location:   param.LocationPath,
			Confidence: pathScore,
			Evidence: []param.Evidence{{
				Location: param.LocationPath,
				Strategy: StrategyPathPattern,
				Detail:   "path segment " + seg,
				Source:   EvidenceSource,
			}},
		}, nil
	}

	raw := make(map[param.Location]float64, maxProbes)
	var evidence []param.Evidence
	var fails []param.PartialFailure

	for _, test := range r.probePlan(req) {
		if ctx.Err() != nil {
			break
		}
		if !r.breaker.Allow() {
			r.collector.RecordProbeSkipped()
			fails = append(fails, param.PartialFailure{
				Phase:     param.PhaseLocation,
				Operation: "probe_skipped",
				Message:   fmt.Sprintf("%s/%s: breaker open", cand.Name, test.strategy),
			})
			continue
		}

		preq, err := transport.BuildProbe(req, test.loc, cand.Name, probeValue)
		if err != nil {
			fails = append(fails, param.PartialFailure{
				Phase:     param.PhaseLocation,
				Operation: "build_probe",
				Message:   fmt.Sprintf("%s/%s: %v", cand.Name, test.strategy, err),
			})
			continue
		}

		r.collector.RecordProbe()
		r.log.Event(logger.DebugLevel).
			Str("candidate", cand.Name).
			Str("strategy", test.strategy).
			Msg("Probing location")

		resp, err := r.client.Send(ctx, preq)
		if err != nil {
			if errors.IsConnectionError(err) {
				if r.breaker.RecordFailure() {
					r.collector.RecordBreakerTrip()
					r.log.WithCandidate(cand.Name).Warn("Breaker tripped, skipping remaining location probes")
				}
			}
			fails = append(fails, param.PartialFailure{
				Phase:     param.PhaseLocation,
				Operation: "probe",
				Message:   fmt.Sprintf("%s/%s: %v", cand.Name, test.strategy, err),
			})
			continue
		}
		r.breaker.RecordSuccess()

		probeFP, err := fingerprint.Take(resp)
		if err != nil {
			fails = append(fails, param.PartialFailure{
				Phase:     param.PhaseLocation,
				Operation: "fingerprint",
				Message:   fmt.Sprintf("%s/%s: %v", cand.Name, test.strategy, err),
			})
			continue
		}

		diff := fingerprint.Compare(baseline, probeFP)
		ev := diff.Evidence(test.loc, test.strategy, EvidenceSource, probeFP.Status)
		score, detail := scoreReaction(test.loc, cand.Name, probeFP.BodyText, ev)
		ev.Detail = detail
		evidence = append(evidence, ev)
		if score > raw[test.loc] {
			raw[test.loc] = score
		}
	}

	res := verdict(raw)
	res.Evidence = evidence
	return res, fails
}

// probeTest pairs a probe location with the strategy label recorded on
// its evidence.
type probeTest struct {
	loc      param.Location
	strategy string
}

// probePlan lists the probes for one candidate in fixed order: query,
// body, header. GET requests carry no body, so the body probe is
// skipped. The plan is trimmed to the per-candidate cap.
func (r *Resolver) probePlan(req *param.Request) []probeTest {
	plan := make([]probeTest, 0, maxProbes)
	plan = append(plan, probeTest{param.LocationQuery, StrategyQueryProbe})
	if req.Method != "GET" {
		plan = append(plan, probeTest{param.LocationBody, StrategyBodyProbe})
	}
	plan = append(plan, probeTest{param.LocationHeader, StrategyHeaderProbe})
	if len(plan) > r.probeCap {
		plan = plan[:r.probeCap]
	}
	return plan
}

// scoreReaction scores one probe response against its location
// hypothesis. A response indistinguishable from the baseline carries no
// signal regardless of its text: markers count only when the probe
// provoked a reaction. Header hits additionally require the response to
// name the parameter; a header probe with any other reaction is
// discarded rather than credited.
func scoreReaction(loc param.Location, name, body string, ev param.Evidence) (float64, string) {
	if !ev.Usable() {
		return 0, ""
	}
	lower := strings.ToLower(body)

	switch loc {
	case param.LocationQuery:
		for _, marker := range queryMarkers {
			if strings.Contains(lower, marker) {
				return explicitScore, "mentions " + marker
			}
		}
		if locQueryPattern.MatchString(lower) {
			return explicitScore, DetailValidationLoc + "query"
		}
		return genericScore, ""

	case param.LocationBody:
		for _, marker := range bodyMarkers {
			if strings.Contains(lower, marker) {
				return explicitScore, "mentions " + marker
			}
		}
		if locBodyPattern.MatchString(lower) {
			return explicitScore, DetailValidationLoc + "body"
		}
		return genericScore, ""

	case param.LocationHeader:
		if strings.Contains(lower, strings.ToLower(name)) && strings.Contains(lower, "header") {
			return headerScore, "names parameter and mentions header"
		}
	}
	return 0, ""
}

// resolvedOrder fixes the scan order over probed locations.
var resolvedOrder = []param.Location{param.LocationBody, param.LocationQuery, param.LocationHeader}

// verdict folds raw per-location scores into a resolution. Two strong
// signals from different locations are each reduced by the conflict
// penalty; the location keeping the strictly higher raw score wins. A
// tie at the top cannot be resolved and is reported as unknown.
func verdict(raw map[param.Location]float64) param.LocationResolution {
	strong := 0
	for _, s := range raw {
		if s >= strongSignal {
			strong++
		}
	}

	best := param.LocationUnknown
	bestRaw := 0.0
	tie := false
	for _, loc := range resolvedOrder {
		s := raw[loc]
		if s == 0 {
			continue
		}
		switch {
		case s > bestRaw:
			best, bestRaw, tie = loc, s, false
		case s == bestRaw:
			tie = true
		}
	}

	if bestRaw == 0 {
		return param.LocationResolution{Location: param.LocationUnknown, Confidence: floorConfidence}
	}

	score := bestRaw
	conflict := strong >= 2 && bestRaw >= strongSignal
	if conflict {
		score -= conflictPenalty
	}
	if tie {
		best = param.LocationUnknown
	}
	return param.LocationResolution{Location: best, Confidence: clamp(score), Conflict: conflict}
}

// clamp bounds a confidence score to [0.1, 1.0].
func clamp(s float64) float64 {
	return max(floorConfidence, min(1.0, s))
}

// PathMatch reports whether the URL shape itself carries the candidate:
// a {name} or :name template segment anywhere in the path, or a trailing
// numeric or UUID segment paired with an identifier-style name. The
// matched segment is returned for evidence detail.
func PathMatch(rawURL, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", false
	}

	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if strings.EqualFold(seg, "{"+name+"}") || strings.EqualFold(seg, ":"+name) {
			return seg, true
		}
	}

	last := segments[len(segments)-1]
	if (numericSegment(last) || uuidPattern.MatchString(last)) && identifierName(name) {
		return last, true
	}
	return "", false
}

// identifierName reports whether a candidate name reads as a path
// identifier: id, uuid, guid, a snake_case _id suffix, or a camelCase
// Id suffix.
func identifierName(name string) bool {
	lower := strings.ToLower(name)
	if lower == "id" || lower == "uuid" || lower == "guid" {
		return true
	}
	return strings.HasSuffix(lower, "_id") || strings.HasSuffix(name, "Id") || strings.HasSuffix(name, "ID")
}

func numericSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, ch := range seg {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
