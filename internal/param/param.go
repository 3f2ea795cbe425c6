// Package param defines the value types shared by the discovery pipeline phases.
package param

import (
	"fmt"
	"net/url"
	"strings"
)

// Location identifies where a parameter is carried in a request.
type Location string

const (
	LocationQuery   Location = "query"
	LocationBody    Location = "body"
	LocationPath    Location = "path"
	LocationHeader  Location = "header"
	LocationUnknown Location = "unknown"
)

// Valid reports whether l is one of the recognized locations.
func (l Location) Valid() bool {
	switch l {
	case LocationQuery, LocationBody, LocationPath, LocationHeader, LocationUnknown:
		return true
	}
	return false
}

// ValueType is the inferred value type of a parameter.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeObject  ValueType = "object"
	TypeArray   ValueType = "array"
	TypeFile    ValueType = "file"
	TypeUnknown ValueType = "unknown"
)

// Valid reports whether t is one of the recognized value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray, TypeFile, TypeUnknown:
		return true
	}
	return false
}

// AuthType identifies how probe requests authenticate.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "apikey"
)

// Auth holds credentials applied to every probe request.
type Auth struct {
	Type       AuthType `json:"type"`
	Token      string   `json:"token,omitempty"`
	APIKey     string   `json:"api_key,omitempty"`
	HeaderName string   `json:"header_name,omitempty"`
}

// DefaultAPIKeyHeader is used when an apikey auth config names no header.
const DefaultAPIKeyHeader = "X-API-Key"

// Request describes the endpoint under discovery. It is validated once at
// run start and treated as immutable afterwards.
type Request struct {
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Auth           Auth              `json:"auth"`
	Headers        map[string]string `json:"headers,omitempty"`
	SeedBody       map[string]any    `json:"seed_body,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

const (
	DefaultMethod         = "POST"
	DefaultTimeoutSeconds = 30
	MaxTimeoutSeconds     = 120
)

var supportedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// SupportedMethod reports whether the pipeline can probe the given HTTP method.
func SupportedMethod(method string) bool {
	return supportedMethods[strings.ToUpper(method)]
}

// Normalize fills defaults in place: method POST, timeout 30s, apikey header name.
func (r *Request) Normalize() {
	if r.Method == "" {
		r.Method = DefaultMethod
	}
	r.Method = strings.ToUpper(r.Method)
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if r.Auth.Type == "" {
		r.Auth.Type = AuthNone
	}
	if r.Auth.Type == AuthAPIKey && r.Auth.HeaderName == "" {
		r.Auth.HeaderName = DefaultAPIKeyHeader
	}
}

// Validate checks the request after Normalize. A failure here is the only
// fatal condition in a discovery run.
func (r *Request) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	if !SupportedMethod(r.Method) {
		return fmt.Errorf("unsupported method %q", r.Method)
	}
	if r.TimeoutSeconds < 1 || r.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be between 1 and %d, got %d", MaxTimeoutSeconds, r.TimeoutSeconds)
	}
	switch r.Auth.Type {
	case AuthNone, AuthBearer, AuthAPIKey:
	default:
		return fmt.Errorf("unsupported auth type %q", r.Auth.Type)
	}
	return nil
}

// Evidence records one observed response difference or matched signal.
type Evidence struct {
	StatusChanged  bool     `json:"status_changed"`
	HashChanged    bool     `json:"hash_changed"`
	LengthDeltaPct float64  `json:"length_delta_pct"`
	Location       Location `json:"location"`
	Strategy       string   `json:"strategy"`
	Detail         string   `json:"detail,omitempty"`
	Source         string   `json:"source"`
	StatusCode     int      `json:"status_code,omitempty"`
	RequiredHint   bool     `json:"required_hint,omitempty"`
}

// Usable reports whether the entry carries a real signal: a status change, a
// body hash change, or a body length shift above ten percent.
func (e Evidence) Usable() bool {
	return e.StatusChanged || e.HashChanged || e.LengthDeltaPct > 0.1
}

// Candidate sources, in seeding order.
const (
	SourceBodyPattern = "baseline-pattern"
	SourceFramework   = "framework-default"
	SourceHTMLForm    = "html-form"
	SourceWordlist    = "wordlist"
)

// Candidate is a parameter name under investigation.
type Candidate struct {
	Name     string     `json:"name"`
	Source   string     `json:"source"`
	Evidence []Evidence `json:"evidence,omitempty"`
}

// LocationResolution is the resolver's verdict for one candidate. Conflict
// marks runs where two locations both produced strong evidence.
type LocationResolution struct {
	Location   Location   `json:"location"`
	Confidence float64    `json:"confidence"`
	Conflict   bool       `json:"conflict,omitempty"`
	Evidence   []Evidence `json:"evidence,omitempty"`
}

// Framework names emitted by the signal detector.
const (
	FrameworkFastAPI    = "fastapi"
	FrameworkExpress    = "express"
	FrameworkFlask      = "flask"
	FrameworkSpringBoot = "spring_boot"
	FrameworkRails      = "rails"
	FrameworkLaravel    = "laravel"
	FrameworkDjango     = "django"
	FrameworkASPNet     = "aspnet_core"
	FrameworkUnknown    = "unknown"
)

// FrameworkSignal is the detector's verdict for the endpoint's server stack.
type FrameworkSignal struct {
	Framework  string   `json:"framework"`
	Confidence float64  `json:"confidence"`
	Matches    []string `json:"matches,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// EndpointType classifies the endpoint's interaction shape.
type EndpointType string

const (
	EndpointCRUD   EndpointType = "crud"
	EndpointUpload EndpointType = "upload"
	EndpointAuth   EndpointType = "auth_protected"
	EndpointNested EndpointType = "nested_relational"
)

// Classification is the classifier's verdict for the endpoint.
type Classification struct {
	Type       EndpointType `json:"type"`
	Confidence float64      `json:"confidence"`
	Signals    []string     `json:"signals,omitempty"`
}

// Parameter is one scored inference in the final result.
type Parameter struct {
	Name       string     `json:"name"`
	Location   Location   `json:"location"`
	Type       ValueType  `json:"type"`
	Required   bool       `json:"required"`
	Nullable   bool       `json:"nullable,omitempty"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// ScoreBreakdown explains a parameter's confidence score: the final value,
// the resolved location, the evidence and source trail, and the additive
// components that produced the number.
type ScoreBreakdown struct {
	Confidence float64            `json:"confidence"`
	Location   Location           `json:"location"`
	Evidence   []Evidence         `json:"evidence,omitempty"`
	Sources    []string           `json:"sources,omitempty"`
	Components map[string]float64 `json:"components,omitempty"`
}
