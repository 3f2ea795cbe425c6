// Package classify labels the endpoint's interaction shape from the
// baseline fingerprint, the candidate volume, and the framework signal.
// The label steers strategy selection in the differential engine and
// weights confidence scoring; it never filters candidates.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/OpenProbe/internal/fingerprint"
	"github.com/PentesterFlow/OpenProbe/internal/framework"
	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// defaultConfidence is reported when no classification signal fires and
// the endpoint falls back to plain crud.
const defaultConfidence = 0.1

// minVolumeSignal is the candidate count treated as evidence of a
// data-shaped endpoint.
const minVolumeSignal = 3

// SignalValidationShape names the crud signal for a 422 status or a
// detail/errors validation envelope. The scorer reads it back when it
// checks whether the classifier saw a validation-shaped endpoint.
const SignalValidationShape = "validation_shape"

// Path segments that mark upload and auth endpoints.
var (
	uploadSegments = map[string]bool{
		"upload": true, "file": true, "files": true, "media": true,
		"image": true, "document": true, "attachment": true,
	}
	authSegments = map[string]bool{
		"auth": true, "login": true, "token": true, "oauth": true,
		"signin": true, "register": true,
	}
)

// uploadWords mark upload semantics in baseline bodies.
var uploadWords = []string{"upload", "multipart", "file too large"}

// authWords mark auth gates in baseline bodies.
var authWords = []string{
	"unauthorized",
	"authentication failed",
	"access denied",
	"invalid token",
	"login required",
	"expired session",
}

var (
	validationShapePattern = regexp.MustCompile(`"(?:detail|errors)"\s*:\s*[\[{]`)
	nestedLocPattern       = regexp.MustCompile(`\[\s*"[^"]+"\s*,\s*(?:"[^"]+"|\d+)\s*,\s*(?:"[^"]+"|\d+)`)
	dottedIndexPattern     = regexp.MustCompile(`[a-z_][a-z0-9_]*\.\d+\.[a-z_]`)
	uuidSegmentPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// specificTypes are evaluated in priority order; the crud label is the
// fallback when none of them fires.
var specificTypes = []param.EndpointType{
	param.EndpointUpload,
	param.EndpointAuth,
	param.EndpointNested,
}

// Classifier labels endpoints. The framework detector is a constructor
// dependency: when Classify receives a zero-value signal it runs the
// detector on the baseline itself.
type Classifier struct {
	detector *framework.Detector
}

// NewClassifier creates a classifier around the given detector. A nil
// detector gets the default rule set.
func NewClassifier(detector *framework.Detector) *Classifier {
	if detector == nil {
		detector = framework.NewDetector()
	}
	return &Classifier{detector: detector}
}

// Classify labels the endpoint. Each rule that fires is one independent
// signal; the specific type with the most signals wins and its
// confidence is min(signals/3, 1.0). When no specific type fires the
// endpoint is crud, scored by its own signals, or reported at the 0.1
// default when nothing fired at all.
func (c *Classifier) Classify(baseline fingerprint.Fingerprint, candidateCount int, signal param.FrameworkSignal, req *param.Request) param.Classification {
	if signal.Framework == "" {
		signal = c.detector.Detect(baseline)
	}

	body := strings.ToLower(baseline.BodyText)
	segments := pathSegments(req.URL)

	fired := make(map[param.EndpointType][]string, 4)
	hit := func(t param.EndpointType, name string) {
		fired[t] = append(fired[t], name)
	}

	if multipartSupport(baseline, req) {
		hit(param.EndpointUpload, "multipart_support")
	}
	if segmentAmong(segments, uploadSegments) {
		hit(param.EndpointUpload, "upload_path")
	}
	if containsAny(body, uploadWords) {
		hit(param.EndpointUpload, "upload_text")
	}

	if baseline.Status == 401 || baseline.Status == 403 {
		hit(param.EndpointAuth, "auth_status")
	}
	if baseline.Header("www-authenticate") != "" {
		hit(param.EndpointAuth, "auth_challenge")
	}
	if segmentAmong(segments, authSegments) {
		hit(param.EndpointAuth, "auth_path")
	}
	if containsAny(body, authWords) {
		hit(param.EndpointAuth, "auth_text")
	}

	if nestedLocPattern.MatchString(body) || dottedIndexPattern.MatchString(body) {
		hit(param.EndpointNested, "nested_error_path")
	}
	if nestedURL(segments) {
		hit(param.EndpointNested, "nested_url")
	}

	if baseline.IsJSON() {
		hit(param.EndpointCRUD, "json_content")
	}
	if baseline.Status == 422 || validationShapePattern.MatchString(body) {
		hit(param.EndpointCRUD, SignalValidationShape)
	}
	if apiPath(segments) {
		hit(param.EndpointCRUD, "api_path")
	}
	if candidateCount >= minVolumeSignal {
		hit(param.EndpointCRUD, "candidate_volume")
	}
	if signal.Framework != "" && signal.Framework != param.FrameworkUnknown {
		hit(param.EndpointCRUD, "framework_signal")
	}

	best := param.EndpointCRUD
	bestCount := 0
	for _, t := range specificTypes {
		if n := len(fired[t]); n > bestCount {
			best, bestCount = t, n
		}
	}
	if bestCount == 0 {
		crud := fired[param.EndpointCRUD]
		if len(crud) == 0 {
			return param.Classification{Type: param.EndpointCRUD, Confidence: defaultConfidence}
		}
		return param.Classification{
			Type:       param.EndpointCRUD,
			Confidence: normalize(len(crud)),
			Signals:    crud,
		}
	}
	return param.Classification{
		Type:       best,
		Confidence: normalize(bestCount),
		Signals:    fired[best],
	}
}

// normalize maps a signal count to confidence: three agreeing signals
// are full confidence.
func normalize(count int) float64 {
	return min(float64(count)/3.0, 1.0)
}

// multipartSupport reports whether the endpoint advertises multipart
// handling: the configured content type, the baseline content type, or
// an Accept-Post challenge.
func multipartSupport(baseline fingerprint.Fingerprint, req *param.Request) bool {
	if strings.Contains(strings.ToLower(req.ContentType), "multipart") {
		return true
	}
	if strings.Contains(baseline.ContentType, "multipart") {
		return true
	}
	return strings.Contains(strings.ToLower(baseline.Header("accept-post")), "multipart")
}

func pathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = strings.ToLower(seg)
	}
	return segments
}

func segmentAmong(segments []string, set map[string]bool) bool {
	for _, seg := range segments {
		if set[seg] {
			return true
		}
	}
	return false
}

func containsAny(body string, words []string) bool {
	for _, word := range words {
		if strings.Contains(body, word) {
			return true
		}
	}
	return false
}

// apiPath reports an api-style path: an "api" segment or a version
// segment like v1.
func apiPath(segments []string) bool {
	for _, seg := range segments {
		if seg == "api" {
			return true
		}
		if len(seg) >= 2 && seg[0] == 'v' && allDigits(seg[1:]) {
			return true
		}
	}
	return false
}

// nestedURL reports resource nesting: an identifier segment followed by
// more path, as in /users/{id}/posts.
func nestedURL(segments []string) bool {
	for i, seg := range segments {
		if i == len(segments)-1 {
			break
		}
		if idSegment(seg) {
			return true
		}
	}
	return false
}

func idSegment(seg string) bool {
	if seg == "" {
		return false
	}
	if seg[0] == ':' {
		return true
	}
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return true
	}
	return allDigits(seg) || uuidSegmentPattern.MatchString(seg)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
