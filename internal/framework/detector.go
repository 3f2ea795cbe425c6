// Package framework infers the server-side framework behind an endpoint
// from response signatures: validation error shapes, identifying headers,
// and HTML generator tags.
package framework

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/PentesterFlow/OpenProbe/internal/fingerprint"
	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// rule is one framework's signature set plus the validation field names it
// commonly rejects, used to seed candidates.
type rule struct {
	framework string
	patterns  []*regexp.Regexp
	fields    []string
}

// Detector matches response fingerprints against framework signatures.
// Detection is deterministic and side-effect free.
type Detector struct {
	rules []rule
}

// NewDetector creates a detector with the built-in signature table.
func NewDetector() *Detector {
	return &Detector{
		rules: []rule{
			{
				framework: param.FrameworkFastAPI,
				patterns: compile(
					`"detail":\s*"[^"]*missing"`,
					`"loc":\s*\["[^"]*"`,
					`422\s+unprocessable\s+entity`,
					`fastapi`,
					`"type":\s*"validation_error"`,
				),
				fields: []string{"username", "email", "password", "limit", "offset"},
			},
			{
				framework: param.FrameworkExpress,
				patterns: compile(
					`x-powered-by:\s*express`,
					`express\s*\d+\.\d+`,
					`"message":\s*"[^"]*required"`,
					`cannot\s+post\s*/`,
					`error:\s*[^"]*is\s+required`,
				),
				fields: []string{"name", "email", "password", "token"},
			},
			{
				framework: param.FrameworkFlask,
				patterns: compile(
					`flask\s*\d+\.\d+`,
					`werkzeug`,
					`keyerror\s*'[^']*'`,
					`jinja2`,
				),
				fields: []string{"username", "password", "csrf_token"},
			},
			{
				framework: param.FrameworkSpringBoot,
				patterns: compile(
					`spring\s+boot`,
					`"timestamp":\s*\d{13}`,
					`org\.springframework`,
					`whitelabel\s+error\s+page`,
					`"error":\s*"[^"]*required"`,
				),
				fields: []string{"id", "name", "page", "size", "sort"},
			},
			{
				framework: param.FrameworkRails,
				patterns: compile(
					`rails\s*\d+\.\d+`,
					`param\s+is\s+missing`,
					`actioncontroller`,
					`activerecord::recordinvalid`,
				),
				fields: []string{"id", "page", "per_page", "authenticity_token"},
			},
			{
				framework: param.FrameworkLaravel,
				patterns: compile(
					`laravel`,
					`the\s+given\s+data\s+was\s+invalid`,
					`illuminate`,
					`validation\.exception`,
				),
				fields: []string{"name", "email", "password", "_token"},
			},
			{
				framework: param.FrameworkDjango,
				patterns: compile(
					`django\s*\d+\.\d+`,
					`this\s+field\s+may\s+not\s+be\s+blank`,
					`this\s+field\s+is\s+required`,
					`non_field_errors`,
					`csrfmiddlewaretoken`,
				),
				fields: []string{"username", "password", "csrfmiddlewaretoken", "page"},
			},
			{
				framework: param.FrameworkASPNet,
				patterns: compile(
					`microsoft\.aspnetcore`,
					`\.net\s+core`,
					`kestrel`,
					`one\s+or\s+more\s+validation\s+errors\s+occurred`,
				),
				fields: []string{"id", "name", "page", "pageSize"},
			},
		},
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		patterns[i] = regexp.MustCompile(`(?i)` + expr)
	}
	return patterns
}

// Detect scores every framework's patterns against the fingerprint body,
// headers, and HTML metadata. Each pattern hit adds 0.5; the best score
// wins with confidence min(score/2, 1.0). No match yields the zero-value
// signal with framework "unknown".
func (d *Detector) Detect(fp fingerprint.Fingerprint) param.FrameworkSignal {
	corpus := buildCorpus(fp)

	best := param.FrameworkSignal{Framework: param.FrameworkUnknown}
	bestScore := 0.0

	for _, r := range d.rules {
		score := 0.0
		var matches []string
		for _, pattern := range r.patterns {
			if pattern.MatchString(corpus) {
				score += 0.5
				matches = append(matches, pattern.String())
			}
		}
		if score > bestScore {
			bestScore = score
			best = param.FrameworkSignal{
				Framework:  r.framework,
				Confidence: min(score/2, 1.0),
				Matches:    matches,
				Fields:     append([]string(nil), r.fields...),
			}
		}
	}

	return best
}

// buildCorpus joins body text, "key: value" header lines, and HTML metadata
// into one scannable string.
func buildCorpus(fp fingerprint.Fingerprint) string {
	var b strings.Builder
	b.WriteString(fp.BodyText)
	for key, value := range fp.Headers {
		b.WriteString("\n")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
	}
	if fp.IsHTML() {
		for _, signal := range htmlSignals(fp.BodyText) {
			b.WriteString("\n")
			b.WriteString(signal)
		}
	}
	return b.String()
}

// htmlSignals extracts generator meta tags and the page title from an HTML
// body. Parse failures yield no signals; tolerant parsing means malformed
// markup still produces a partial tree.
func htmlSignals(body string) []string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var signals []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var name, content string
				for _, attr := range n.Attr {
					switch strings.ToLower(attr.Key) {
					case "name":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if name == "generator" && content != "" {
					signals = append(signals, fmt.Sprintf("generator: %s", content))
				}
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					signals = append(signals, fmt.Sprintf("title: %s", n.FirstChild.Data))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return signals
}

// DefaultFields returns the candidate field names seeded for a framework.
func (d *Detector) DefaultFields(framework string) []string {
	for _, r := range d.rules {
		if r.framework == framework {
			return append([]string(nil), r.fields...)
		}
	}
	return nil
}
