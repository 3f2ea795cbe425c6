package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/PentesterFlow/OpenProbe/internal/param"
	"gopkg.in/yaml.v3"
)

// Config holds all discovery configuration.
type Config struct {
	// Target endpoint URL to probe
	Target string `json:"target" yaml:"target"`

	// HTTP method to probe with
	Method string `json:"method" yaml:"method"`

	// Total time budget for the run, in seconds
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// Content type for probe bodies
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`

	// Extra headers sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Known-good body fields to seed probes with
	SeedBody map[string]interface{} `json:"seed_body,omitempty" yaml:"seed_body,omitempty"`

	// Authentication
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Number of concurrent probe workers
	Workers int `json:"workers" yaml:"workers"`

	// Maximum probes per candidate parameter
	RequestCap int `json:"request_cap" yaml:"request_cap"`

	// Wordlist candidate seeding
	Wordlist WordlistConfig `json:"wordlist" yaml:"wordlist"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// Result persistence
	State StateConfig `json:"state" yaml:"state"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug logging
	Debug bool `json:"debug" yaml:"debug"`
}

// AuthConfig carries the credential attached to every probe.
type AuthConfig struct {
	// Auth scheme: none, bearer, or apikey
	Type string `json:"type" yaml:"type"`

	// Bearer token
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// API key value
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Header carrying the API key
	APIKeyHeader string `json:"api_key_header,omitempty" yaml:"api_key_header,omitempty"`
}

// WordlistConfig controls wordlist-sourced candidate seeding.
type WordlistConfig struct {
	// Enable wordlist candidates
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path to a newline-separated wordlist; empty uses the built-in list
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RateLimitConfig controls outbound request pacing.
type RateLimitConfig struct {
	// Maximum requests per second
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// Burst capacity
	Burst int `json:"burst" yaml:"burst"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	// Output format (json)
	Format string `json:"format" yaml:"format"`

	// Pretty-print JSON
	Pretty bool `json:"pretty" yaml:"pretty"`

	// Stream per-parameter events as they are scored
	Stream bool `json:"stream" yaml:"stream"`

	// Output file path; empty writes to stdout
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// StateConfig controls result persistence across runs.
type StateConfig struct {
	// Persist results to the history store
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path to the history database file
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Method:         "POST",
		TimeoutSeconds: param.DefaultTimeoutSeconds,
		Auth: AuthConfig{
			Type: string(param.AuthNone),
		},
		Workers:    4,
		RequestCap: 5,
		Wordlist: WordlistConfig{
			Enabled: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Output: OutputConfig{
			Format: "json",
			Pretty: true,
		},
		State: StateConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration. URL shape and method support are
// checked again, fatally, when a run builds its request.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target URL is required")
	}

	if c.Method != "" && !param.SupportedMethod(strings.ToUpper(c.Method)) {
		return fmt.Errorf("unsupported method: %s", c.Method)
	}

	if c.TimeoutSeconds < 0 || c.TimeoutSeconds > param.MaxTimeoutSeconds {
		return fmt.Errorf("timeout must be between 1 and %d seconds", param.MaxTimeoutSeconds)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if c.RequestCap < 1 {
		return fmt.Errorf("request cap must be at least 1")
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	switch c.Auth.Type {
	case "", string(param.AuthNone), string(param.AuthBearer), string(param.AuthAPIKey):
	default:
		return fmt.Errorf("unknown auth type: %s", c.Auth.Type)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

// BuildRequest converts the configuration into a normalized probe request.
func (c *Config) BuildRequest() *param.Request {
	req := &param.Request{
		URL:    c.Target,
		Method: c.Method,
		Auth: param.Auth{
			Type:       param.AuthType(c.Auth.Type),
			Token:      c.Auth.Token,
			APIKey:     c.Auth.APIKey,
			HeaderName: c.Auth.APIKeyHeader,
		},
		Headers:        c.Headers,
		SeedBody:       c.SeedBody,
		ContentType:    c.ContentType,
		TimeoutSeconds: c.TimeoutSeconds,
	}
	req.Normalize()
	return req
}
