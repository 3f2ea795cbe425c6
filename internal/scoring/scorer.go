// Package scoring folds every phase's evidence for a candidate into one
// deterministic confidence value. The rule is additive over fixed
// components and clamped to [0.1, 1.0]: identical inputs always produce
// identical parameter records, with no weighting knobs to tune.
package scoring

import (
	"strings"

	"github.com/PentesterFlow/OpenProbe/internal/classify"
	"github.com/PentesterFlow/OpenProbe/internal/differential"
	"github.com/PentesterFlow/OpenProbe/internal/location"
	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// Additive components of the confidence score.
const (
	baseScore       = 0.2
	validationBonus = 0.3
	volumeBonus     = 0.2
	typedBonus      = 0.2
	requiredBonus   = 0.1
	conflictPenalty = 0.2
	genericPenalty  = 0.1
)

// Confidence bounds after the components are summed.
const (
	floorConfidence = 0.1
	maxConfidence   = 1.0
)

// minEvidenceVolume is how many signal-bearing entries earn the volume
// bonus.
const minEvidenceVolume = 2

// strongLocation is the resolver confidence treated as an explicit
// location fix.
const strongLocation = 0.5

// Scorer produces the final parameter records.
type Scorer struct {
	log *logger.Logger
}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{log: logger.Global().WithComponent("scoring")}
}

// SetLogger replaces the scorer's logger.
func (s *Scorer) SetLogger(log *logger.Logger) {
	if log != nil {
		s.log = log.WithComponent("scoring")
	}
}

// Score merges a candidate's probe evidence with its location resolution,
// the endpoint classification, and the framework signal into a scored
// parameter plus the breakdown explaining the number.
//
//	score = 0.2 base
//	      + 0.3 structured validation-error shape in the evidence
//	      + 0.2 two or more signal-bearing evidence entries
//	      + 0.2 inferred type is not unknown
//	      + 0.1 a second phase agrees the parameter is required
//	      - 0.2 two locations produced strong competing evidence
//	      - 0.1 the only evidence is a generic, unspecific reaction
func (s *Scorer) Score(cand param.Candidate, locRes param.LocationResolution, class param.Classification, signal param.FrameworkSignal) (param.Parameter, param.ScoreBreakdown) {
	evidence := mergeEvidence(cand.Evidence, locRes.Evidence)

	usable := 0
	for _, ev := range evidence {
		if ev.Usable() {
			usable++
		}
	}

	typ := inferType(evidence)
	required := cand.Source == param.SourceBodyPattern
	structured := structuredValidation(cand, evidence)

	score := baseScore
	components := map[string]float64{"base": baseScore}
	if structured {
		score += validationBonus
		components["validation_shape"] = validationBonus
	}
	if usable >= minEvidenceVolume {
		score += volumeBonus
		components["evidence_volume"] = volumeBonus
	}
	if typ != param.TypeUnknown {
		score += typedBonus
		components["typed"] = typedBonus
	}
	if required && requiredAgreement(locRes, class, evidence) {
		score += requiredBonus
		components["required_agreement"] = requiredBonus
	}
	if locRes.Conflict {
		score -= conflictPenalty
		components["location_conflict"] = -conflictPenalty
	}
	if genericOnly(usable, structured, locRes) {
		score -= genericPenalty
		components["generic_only"] = -genericPenalty
	}

	confidence := clamp(score)

	s.log.Event(logger.DebugLevel).
		Str("parameter", cand.Name).
		Str("location", string(locRes.Location)).
		Str("type", string(typ)).
		Float64("confidence", confidence).
		Msg("Scored parameter")

	return param.Parameter{
			Name:       cand.Name,
			Location:   locRes.Location,
			Type:       typ,
			Required:   required,
			Nullable:   nullable(evidence),
			Confidence: confidence,
			Evidence:   evidence,
		}, param.ScoreBreakdown{
			Confidence: confidence,
			Location:   locRes.Location,
			Evidence:   evidence,
			Sources:    sources(cand, evidence, signal),
			Components: components,
		}
}

// mergeEvidence concatenates probe and location evidence into a fresh
// slice, preserving collection order.
func mergeEvidence(probe, loc []param.Evidence) []param.Evidence {
	merged := make([]param.Evidence, 0, len(probe)+len(loc))
	merged = append(merged, probe...)
	return append(merged, loc...)
}

// inferType returns the type implied by the first typed strategy the
// server accepted. The null strategy and the resolver's probes map to no
// type and are skipped.
func inferType(evidence []param.Evidence) param.ValueType {
	for _, ev := range evidence {
		t := differential.StrategyType(ev.Strategy)
		if t == param.TypeUnknown {
			continue
		}
		if accepted(ev) {
			return t
		}
	}
	return param.TypeUnknown
}

// accepted reports whether a probe's value went through: the response
// reacted without changing status, or the status moved into the 2xx
// range. A response indistinguishable from the baseline accepts nothing.
func accepted(ev param.Evidence) bool {
	if !ev.Usable() {
		return false
	}
	if !ev.StatusChanged {
		return true
	}
	return ev.StatusCode >= 200 && ev.StatusCode < 300
}

// nullable reports whether the null probe was accepted. Required-field
// phrasing in the response rejects null even when the status survived.
func nullable(evidence []param.Evidence) bool {
	for _, ev := range evidence {
		if ev.Strategy != differential.StrategyNull {
			continue
		}
		return accepted(ev) && !ev.RequiredHint
	}
	return false
}

// structuredValidation reports a structured validation-error shape
// anywhere in the trail: the candidate was lifted from a baseline
// validation complaint, a probe response used required-field phrasing, or
// a location probe matched a machine-readable loc array.
func structuredValidation(cand param.Candidate, evidence []param.Evidence) bool {
	if cand.Source == param.SourceBodyPattern {
		return true
	}
	for _, ev := range evidence {
		if ev.RequiredHint {
			return true
		}
		if strings.HasPrefix(ev.Detail, location.DetailValidationLoc) {
			return true
		}
	}
	return false
}

// requiredAgreement reports whether a phase beyond the baseline scan backs
// the omission complaint: an explicit location fix, a validation-shaped
// endpoint class, or required phrasing in a probe response.
func requiredAgreement(locRes param.LocationResolution, class param.Classification, evidence []param.Evidence) bool {
	if locRes.Location != param.LocationUnknown && locRes.Confidence >= strongLocation {
		return true
	}
	for _, sig := range class.Signals {
		if sig == classify.SignalValidationShape {
			return true
		}
	}
	for _, ev := range evidence {
		if ev.RequiredHint {
			return true
		}
	}
	return false
}

// genericOnly reports reactions that never got specific: something
// shifted, but no response named the parameter, a carrier, or a
// validation shape.
func genericOnly(usable int, structured bool, locRes param.LocationResolution) bool {
	if usable == 0 || structured {
		return false
	}
	for _, ev := range locRes.Evidence {
		if ev.Detail != "" {
			return false
		}
	}
	return true
}

// sources lists the distinct evidence origins in first-seen order, plus
// the framework verdict when one was detected.
func sources(cand param.Candidate, evidence []param.Evidence, signal param.FrameworkSignal) []string {
	seen := make(map[string]bool, 4)
	out := make([]string, 0, 4)
	add := func(src string) {
		if src != "" && !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	add(cand.Source)
	for _, ev := range evidence {
		add(ev.Source)
	}
	if signal.Framework != "" && signal.Framework != param.FrameworkUnknown {
		add("framework:" + signal.Framework)
	}
	return out
}

// clamp bounds a summed score to [0.1, 1.0]. The floor keeps a surviving
// candidate from ever scoring zero.
func clamp(s float64) float64 {
	return min(max(s, floorConfidence), maxConfidence)
}
