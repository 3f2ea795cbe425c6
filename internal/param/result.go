package param

// DiscoveryVersion tags results produced by this pipeline generation.
const DiscoveryVersion = "v2"

// Orchestration phase names, in execution order.
const (
	PhaseBaseline       = "baseline_fingerprinting"
	PhaseDifferential   = "differential_engine"
	PhaseLocation       = "location_resolver"
	PhaseFramework      = "framework_signals"
	PhaseClassification = "endpoint_classification"
	PhaseScoring        = "confidence_scoring"
)

// OrchestrationPhases lists every pipeline phase in execution order.
func OrchestrationPhases() []string {
	return []string{
		PhaseBaseline,
		PhaseDifferential,
		PhaseLocation,
		PhaseFramework,
		PhaseClassification,
		PhaseScoring,
	}
}

// PartialFailure records a non-fatal degradation during a run.
type PartialFailure struct {
	Phase     string `json:"phase"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
}

// FingerprintSummary is the baseline fingerprint digest carried in result meta.
type FingerprintSummary struct {
	StatusCode  int    `json:"status_code"`
	BodyLength  int    `json:"body_length"`
	BodyHash    string `json:"body_hash"`
	ContentType string `json:"content_type,omitempty"`
}

// Meta describes how a discovery run executed.
type Meta struct {
	TotalParameters     int                           `json:"total_parameters"`
	PartialFailures     int                           `json:"partial_failures"`
	Failures            []PartialFailure              `json:"failures,omitempty"`
	ExecutionTimeMs     int64                         `json:"execution_time_ms"`
	DiscoveryVersion    string                        `json:"discovery_version"`
	OrchestrationPhases []string                      `json:"orchestration_phases"`
	PhaseTimingsMs      map[string]int64              `json:"phase_timings_ms,omitempty"`
	RequestCount        int                           `json:"request_count"`
	TimeBudgetSeconds   int                           `json:"time_budget_seconds"`
	BaselineFingerprint *FingerprintSummary           `json:"baseline_fingerprint,omitempty"`
	Classification      *Classification               `json:"endpoint_classification,omitempty"`
	FrameworkSignal     *FrameworkSignal              `json:"framework_signal,omitempty"`
	LocationResolution  map[string]LocationResolution `json:"location_resolution,omitempty"`
	ConfidenceScoring   map[string]ScoreBreakdown     `json:"confidence_scoring,omitempty"`
}

// DiscoveryResult is the pipeline's final output. It is always structurally
// valid: a dead or generic endpoint yields an empty parameter list, never an
// error shape.
type DiscoveryResult struct {
	URL        string      `json:"url"`
	Method     string      `json:"method"`
	Parameters []Parameter `json:"parameters"`
	Meta       Meta        `json:"meta"`
}
