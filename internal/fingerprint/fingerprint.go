// Package fingerprint condenses HTTP responses into comparable fingerprints.
// All functions are pure: identical responses produce identical fingerprints,
// and diffing never touches the network.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/transport"
)

// Fingerprint is the normalized shape of one HTTP response. BodyText is kept
// for candidate extraction only; comparisons go through BodyHash.
type Fingerprint struct {
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers"`
	BodyText    string            `json:"-"`
	BodyHash    string            `json:"body_hash"`
	BodyLength  int               `json:"body_length"`
	ContentType string            `json:"content_type,omitempty"`
	Encoding    string            `json:"encoding,omitempty"`
	Latency     time.Duration     `json:"-"`
}

// Take fingerprints a response. The only failure is a nil response.
func Take(resp *transport.Response) (Fingerprint, error) {
	if resp == nil {
		return Fingerprint{}, fmt.Errorf("cannot fingerprint nil response")
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 0 {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(values[0])
	}

	sum := sha256.Sum256(resp.Body)

	contentType := headers["content-type"]
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	return Fingerprint{
		Status:      resp.StatusCode,
		Headers:     headers,
		BodyText:    string(resp.Body),
		BodyHash:    hex.EncodeToString(sum[:]),
		BodyLength:  len(resp.Body),
		ContentType: contentType,
		Encoding:    headers["content-encoding"],
		Latency:     resp.Duration,
	}, nil
}

// Header returns a normalized header value by case-insensitive key.
func (fp Fingerprint) Header(key string) string {
	return fp.Headers[strings.ToLower(key)]
}

// IsJSON reports whether the response body is JSON.
func (fp Fingerprint) IsJSON() bool {
	return strings.Contains(fp.ContentType, "json")
}

// IsHTML reports whether the response body is HTML.
func (fp Fingerprint) IsHTML() bool {
	return strings.Contains(fp.ContentType, "html")
}

// Summary reduces the fingerprint to the fields echoed in result metadata.
func (fp Fingerprint) Summary() param.FingerprintSummary {
	return param.FingerprintSummary{
		StatusCode:  fp.Status,
		BodyLength:  fp.BodyLength,
		BodyHash:    fp.BodyHash,
		ContentType: fp.ContentType,
	}
}

// Diff is the structured comparison of two fingerprints.
type Diff struct {
	StatusChanged  bool     `json:"status_changed"`
	HashChanged    bool     `json:"hash_changed"`
	LengthDeltaPct float64  `json:"length_delta_pct"`
	HeadersAdded   []string `json:"headers_added,omitempty"`
	HeadersRemoved []string `json:"headers_removed,omitempty"`
	HeadersChanged []string `json:"headers_changed,omitempty"`
}

// Compare diffs a probe fingerprint against the baseline. LengthDeltaPct is
// abs(delta)/baseline length, zero when the baseline body is empty.
func Compare(base, probe Fingerprint) Diff {
	d := Diff{
		StatusChanged: base.Status != probe.Status,
		HashChanged:   base.BodyHash != probe.BodyHash,
	}

	if base.BodyLength > 0 {
		delta := float64(probe.BodyLength - base.BodyLength)
		if delta < 0 {
			delta = -delta
		}
		d.LengthDeltaPct = delta / float64(base.BodyLength)
	}

	for key := range probe.Headers {
		if _, ok := base.Headers[key]; !ok {
			d.HeadersAdded = append(d.HeadersAdded, key)
		}
	}
	for key := range base.Headers {
		if _, ok := probe.Headers[key]; !ok {
			d.HeadersRemoved = append(d.HeadersRemoved, key)
		}
	}
	for key, probeVal := range probe.Headers {
		if baseVal, ok := base.Headers[key]; ok && baseVal != probeVal {
			d.HeadersChanged = append(d.HeadersChanged, key)
		}
	}
	sort.Strings(d.HeadersAdded)
	sort.Strings(d.HeadersRemoved)
	sort.Strings(d.HeadersChanged)

	return d
}

// Evidence converts a diff into an evidence entry tagged with its origin.
func (d Diff) Evidence(loc param.Location, strategy, source string, statusCode int) param.Evidence {
	return param.Evidence{
		StatusChanged:  d.StatusChanged,
		HashChanged:    d.HashChanged,
		LengthDeltaPct: d.LengthDeltaPct,
		Location:       loc,
		Strategy:       strategy,
		Source:         source,
		StatusCode:     statusCode,
	}
}

// Patterns are coarse error markers extracted from a fingerprint. The
// classifier and scorer consume these instead of raw bodies.
type Patterns struct {
	HTTPError    bool     `json:"http_error"`
	ClientError  bool     `json:"client_error"`
	ServerError  bool     `json:"server_error"`
	EmptyBody    bool     `json:"empty_body"`
	ShortBody    bool     `json:"short_body"`
	ErrorHeaders []string `json:"error_headers,omitempty"`
	ContentType  string   `json:"content_type,omitempty"`
}

// shortBodyThreshold marks bodies that are error-stub sized.
const shortBodyThreshold = 50

// ErrorPatterns extracts coarse error markers from a fingerprint.
func ErrorPatterns(fp Fingerprint) Patterns {
	p := Patterns{
		ContentType: fp.ContentType,
	}

	if fp.Status >= 400 {
		p.HTTPError = true
		p.ClientError = fp.Status < 500
		p.ServerError = fp.Status >= 500
	}

	for key := range fp.Headers {
		if strings.Contains(key, "error") || strings.Contains(key, "fail") || strings.Contains(key, "invalid") {
			p.ErrorHeaders = append(p.ErrorHeaders, key)
		}
	}
	sort.Strings(p.ErrorHeaders)

	if fp.BodyLength == 0 {
		p.EmptyBody = true
	} else if fp.BodyLength < shortBodyThreshold {
		p.ShortBody = true
	}

	return p
}
