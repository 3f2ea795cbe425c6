package discovery

import (
	"io"
	"time"

	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/metrics"
	"github.com/PentesterFlow/OpenProbe/internal/output"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/state"
	"github.com/PentesterFlow/OpenProbe/internal/transport"
)

// Option is a functional option for configuring the Discoverer.
type Option func(*Discoverer) error

// WithTarget sets the endpoint URL to probe.
func WithTarget(url string) Option {
	return func(d *Discoverer) error {
		d.config.Target = url
		return nil
	}
}

// WithMethod sets the HTTP method to probe with.
func WithMethod(method string) Option {
	return func(d *Discoverer) error {
		d.config.Method = method
		return nil
	}
}

// WithTimeout sets the total time budget for the run. Sub-second values
// round up to one second.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Discoverer) error {
		seconds := int(timeout / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		d.config.TimeoutSeconds = seconds
		return nil
	}
}

// WithBearerToken authenticates probes with a bearer token.
func WithBearerToken(token string) Option {
	return func(d *Discoverer) error {
		d.config.Auth = AuthConfig{
			Type:  string(param.AuthBearer),
			Token: token,
		}
		return nil
	}
}

// WithAPIKey authenticates probes with an API key. An empty header uses
// the default key header.
func WithAPIKey(key, header string) Option {
	return func(d *Discoverer) error {
		d.config.Auth = AuthConfig{
			Type:         string(param.AuthAPIKey),
			APIKey:       key,
			APIKeyHeader: header,
		}
		return nil
	}
}

// WithHeaders sets custom headers for all requests.
func WithHeaders(headers map[string]string) Option {
	return func(d *Discoverer) error {
		d.config.Headers = headers
		return nil
	}
}

// WithHeader adds a single custom header.
func WithHeader(name, value string) Option {
	return func(d *Discoverer) error {
		if d.config.Headers == nil {
			d.config.Headers = make(map[string]string)
		}
		d.config.Headers[name] = value
		return nil
	}
}

// WithSeedBody sets known-good body fields to carry in every probe.
func WithSeedBody(body map[string]interface{}) Option {
	return func(d *Discoverer) error {
		d.config.SeedBody = body
		return nil
	}
}

// WithContentType sets the content type for probe bodies.
func WithContentType(contentType string) Option {
	return func(d *Discoverer) error {
		d.config.ContentType = contentType
		return nil
	}
}

// WithWorkers sets the number of concurrent probe workers.
func WithWorkers(n int) Option {
	return func(d *Discoverer) error {
		if n < 1 {
			n = 1
		}
		d.config.Workers = n
		return nil
	}
}

// WithRequestCap sets the maximum probes per candidate.
func WithRequestCap(n int) Option {
	return func(d *Discoverer) error {
		if n < 1 {
			n = 1
		}
		d.config.RequestCap = n
		return nil
	}
}

// WithWordlist enables/disables wordlist candidate seeding.
func WithWordlist(enabled bool) Option {
	return func(d *Discoverer) error {
		d.config.Wordlist.Enabled = enabled
		return nil
	}
}

// WithWordlistFile sets a wordlist file and enables wordlist seeding.
func WithWordlistFile(path string) Option {
	return func(d *Discoverer) error {
		d.config.Wordlist.Path = path
		d.config.Wordlist.Enabled = true
		return nil
	}
}

// WithRateLimit sets the outbound request rate.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(d *Discoverer) error {
		d.config.RateLimit.RequestsPerSecond = requestsPerSecond
		d.config.RateLimit.Burst = burst
		return nil
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(d *Discoverer) error {
		d.outputWriter = w
		return nil
	}
}

// WithOutputFile sets the output file path.
func WithOutputFile(path string) Option {
	return func(d *Discoverer) error {
		d.config.Output.FilePath = path
		return nil
	}
}

// WithPrettyOutput enables/disables pretty JSON output.
func WithPrettyOutput(pretty bool) Option {
	return func(d *Discoverer) error {
		d.config.Output.Pretty = pretty
		return nil
	}
}

// WithStreamMode enables streaming output mode.
func WithStreamMode(stream bool) Option {
	return func(d *Discoverer) error {
		d.config.Output.Stream = stream
		return nil
	}
}

// WithProgress installs a callback fired for every parameter, phase, and
// failure the run produces, whether or not stream output is on. The
// callback runs on the pipeline goroutine and must not block.
func WithProgress(fn func(output.ProgressStats)) Option {
	return func(d *Discoverer) error {
		d.onProgress = fn
		return nil
	}
}

// WithStateFile sets the history database path and enables persistence.
func WithStateFile(path string) Option {
	return func(d *Discoverer) error {
		d.config.State.FilePath = path
		d.config.State.Enabled = true
		return nil
	}
}

// WithStore sets a custom history store.
func WithStore(s state.Store) Option {
	return func(d *Discoverer) error {
		d.store = s
		return nil
	}
}

// WithTransport sets a custom probe client. The caller keeps ownership
// and closes it.
func WithTransport(client transport.Client) Option {
	return func(d *Discoverer) error {
		d.client = client
		return nil
	}
}

// WithVerbose enables/disables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(d *Discoverer) error {
		d.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables/disables debug mode.
func WithDebug(debug bool) Option {
	return func(d *Discoverer) error {
		d.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Discoverer) error {
		d.log = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Discoverer) error {
		d.collector = m
		return nil
	}
}

// WithConfig sets the entire configuration.
func WithConfig(config *Config) Option {
	return func(d *Discoverer) error {
		d.config = config
		return nil
	}
}
