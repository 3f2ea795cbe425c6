// Package differential probes candidate parameter names against a baseline
// fingerprint and records one response-diff evidence entry per probe.
package differential

import (
	"regexp"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/OpenProbe/internal/fingerprint"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/parser"
)

// MaxBodyCandidates caps how many names the baseline body scan may seed.
const MaxBodyCandidates = 10

// jsonKeyFallbackLimit is the body size under which bare JSON keys are
// harvested when no error pattern matched.
const jsonKeyFallbackLimit = 500

// Candidate name patterns matched against the baseline body text. The body
// hash is never scanned; it cannot contain names.
var (
	paramPattern   = regexp.MustCompile(`(?i)parameter\s*['"]([^'"]+)['"]`)
	fieldPattern   = regexp.MustCompile(`(?i)field\s*['"]([^'"]+)['"]`)
	missingPattern = regexp.MustCompile(`(?i)(?:missing|not\s+found)\s*['"]([^'"]+)['"]`)
	locPairPattern = regexp.MustCompile(`(?i)"loc"\s*:\s*\[\s*"[^"]+"\s*,\s*"([^"]+)"`)
	locOnePattern  = regexp.MustCompile(`(?i)"loc"\s*:\s*\[\s*"([^"]+)"\s*\]`)
	jsonKeyPattern = regexp.MustCompile(`"([a-zA-Z_][a-zA-Z0-9_]*)"\s*:`)
)

var bodyPatterns = []*regexp.Regexp{
	paramPattern,
	fieldPattern,
	missingPattern,
	locPairPattern,
	locOnePattern,
}

// Generator seeds candidate parameter names from the baseline response, the
// detected framework, and an optional wordlist.
type Generator struct {
	wordlist []string
}

// NewGenerator creates a generator with no wordlist.
func NewGenerator() *Generator {
	return &Generator{}
}

// SetWordlist enables the wordlist source. Pass CommonParameters() for the
// built-in list.
func (g *Generator) SetWordlist(names []string) {
	g.wordlist = names
}

// Generate collects candidates in source order: baseline body scan, framework
// default fields, HTML form fields, wordlist. A name repeating across sources
// is kept once; the first source wins.
func (g *Generator) Generate(baseline fingerprint.Fingerprint, signal param.FrameworkSignal) []param.Candidate {
	seen := newNameSet(len(g.wordlist) + 64)
	out := make([]param.Candidate, 0, 16)

	for _, name := range bodyCandidates(baseline) {
		if seen.add(name) {
			out = append(out, param.Candidate{Name: name, Source: param.SourceBodyPattern})
		}
	}

	for _, name := range signal.Fields {
		if seen.add(name) {
			out = append(out, param.Candidate{Name: name, Source: param.SourceFramework})
		}
	}

	if baseline.IsHTML() {
		for _, field := range parser.FormFields(baseline.BodyText) {
			if !seen.add(field.Name) {
				continue
			}
			out = append(out, param.Candidate{
				Name:     field.Name,
				Source:   param.SourceHTMLForm,
				Evidence: []param.Evidence{formEvidence(field)},
			})
		}
	}

	for _, name := range g.wordlist {
		if seen.add(name) {
			out = append(out, param.Candidate{Name: name, Source: param.SourceWordlist})
		}
	}

	return out
}

// bodyCandidates scans the baseline body for quoted parameter names. The
// scan runs only against error responses: a healthy baseline names nothing,
// and harvesting keys from ordinary response payloads would seed phantom
// candidates on every JSON endpoint. Short error bodies that match no
// pattern fall back to bare JSON key harvesting.
func bodyCandidates(baseline fingerprint.Fingerprint) []string {
	body := baseline.BodyText
	if body == "" || !fingerprint.ErrorPatterns(baseline).HTTPError {
		return nil
	}

	var names []string
	for _, re := range bodyPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			names = append(names, m[1])
		}
	}
	names = append(names, locEntries(body)...)

	if len(names) == 0 && len(body) < jsonKeyFallbackLimit {
		for _, m := range jsonKeyPattern.FindAllStringSubmatch(body, -1) {
			names = append(names, m[1])
		}
	}

	names = dedupe(names)
	if len(names) > MaxBodyCandidates {
		names = names[:MaxBodyCandidates]
	}
	return names
}

// locEntries walks FastAPI-style validation JSON and returns the last string
// element of each detail[].loc path. The regex table misses loc arrays with
// integer indexes; the JSON walk does not.
func locEntries(body string) []string {
	var names []string
	for _, item := range gson.NewFrom(body).Get("detail").Arr() {
		var last string
		for _, el := range item.Get("loc").Arr() {
			if s, ok := el.Val().(string); ok {
				last = s
			}
		}
		if last != "" {
			names = append(names, last)
		}
	}
	return names
}

// formEvidence seeds the hint entry for a form-sourced candidate.
func formEvidence(f parser.FormField) param.Evidence {
	detail := "input type=" + f.Type
	if f.Required {
		detail += " required"
	}
	return param.Evidence{
		Location:     param.LocationBody,
		Strategy:     "form-field",
		Detail:       detail,
		Source:       param.SourceHTMLForm,
		RequiredHint: f.Required,
	}
}

// CommonParameters returns the built-in wordlist: parameter names common
// across REST APIs, in probe priority order.
func CommonParameters() []string {
	return []string{
		"id", "page", "limit", "offset", "sort", "order", "search", "q",
		"filter", "fields", "format", "callback", "token", "api_key",
		"user_id", "name", "email", "status", "type", "include", "expand",
		"lang", "locale", "version", "debug",
	}
}

// dedupe removes repeated names preserving first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// nameSet tracks names already seeded. The bloom filter front-ends an exact
// map so membership checks stay cheap on large wordlists.
type nameSet struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

func newNameSet(estimated int) *nameSet {
	if estimated < 64 {
		estimated = 64
	}
	return &nameSet{
		filter: bloom.NewWithEstimates(uint(estimated), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// add records the name, reporting false when it was already present.
func (s *nameSet) add(name string) bool {
	if s.filter.TestString(name) {
		if _, ok := s.exact[name]; ok {
			return false
		}
	}
	s.filter.AddString(name)
	s.exact[name] = struct{}{}
	return true
}
