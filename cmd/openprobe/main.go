package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/OpenProbe/internal/api"
	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/output"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/shutdown"
	"github.com/PentesterFlow/OpenProbe/internal/specgen"
	"github.com/PentesterFlow/OpenProbe/internal/state"
	"github.com/PentesterFlow/OpenProbe/pkg/discovery"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Discover flags
	method       string
	timeout      int
	workers      int
	requestCap   int
	rateLimit    float64
	burst        int
	contentType  string
	headerFlags  []string
	seedBody     string
	useWordlist  bool
	wordlistFile string
	outputFile   string
	stateFile    string
	prettyOutput bool
	streamMode   bool
	showProgress bool

	// Auth flags
	authType     string
	token        string
	apiKey       string
	apiKeyHeader string

	// History flags
	historyURL    string
	historyMethod string

	// Serve flags
	serveHost string
	servePort int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "openprobe",
		Short: "OpenProbe - HTTP Parameter Discovery",
		Long: `OpenProbe - Infers undocumented request parameters of HTTP endpoints.

Probes an endpoint with candidate parameters, diffs the responses against a
baseline fingerprint, and reports each accepted parameter with its location,
type, and a confidence score. Results can be rendered as an OpenAPI document.`,
		Version: version,
	}

	// Discover command
	discoverCmd := &cobra.Command{
		Use:   "discover [target]",
		Short: "Discover parameters of an endpoint",
		Long:  "Probe a target URL and infer its undocumented request parameters.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDiscover,
	}

	// Spec command
	specCmd := &cobra.Command{
		Use:   "spec [target]",
		Short: "Generate an OpenAPI document for an endpoint",
		Long:  "Run discovery against a target URL and emit the result as an OpenAPI 3.0 document.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSpec,
	}

	// History command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored discovery results",
		Long:  "List stored discovery runs, or show one endpoint's full result with --url.",
		RunE:  runHistory,
	}

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the discovery API over HTTP",
		Long:  "Run the HTTP frontend with discover, spec, and history endpoints.",
		RunE:  runServe,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Discover flags, shared by the spec command
	for _, cmd := range []*cobra.Command{discoverCmd, specCmd} {
		cmd.Flags().StringVarP(&method, "method", "X", "POST", "HTTP method to probe with")
		cmd.Flags().IntVarP(&timeout, "timeout", "t", 30, "Time budget in seconds")
		cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of concurrent probe workers")
		cmd.Flags().IntVar(&requestCap, "request-cap", 5, "Maximum probes per candidate parameter")
		cmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 10, "Requests per second")
		cmd.Flags().IntVar(&burst, "burst", 5, "Rate limiter burst capacity")
		cmd.Flags().StringVar(&contentType, "content-type", "", "Content type for probe bodies")
		cmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Extra header, as 'Name: value' (repeatable)")
		cmd.Flags().StringVar(&seedBody, "seed-body", "", "Known-good body fields as a JSON object")
		cmd.Flags().BoolVar(&useWordlist, "wordlist", false, "Seed candidates from the built-in wordlist")
		cmd.Flags().StringVar(&wordlistFile, "wordlist-file", "", "Seed candidates from a newline-separated wordlist file")
		cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
		cmd.Flags().StringVar(&stateFile, "state-file", "", "History database for result persistence")

		// Auth flags
		cmd.Flags().StringVar(&authType, "auth-type", "none", "Authentication type (none, bearer, apikey)")
		cmd.Flags().StringVar(&token, "token", "", "Bearer token")
		cmd.Flags().StringVar(&apiKey, "api-key", "", "API key value")
		cmd.Flags().StringVar(&apiKeyHeader, "api-key-header", "X-API-Key", "API key header name")
	}

	// Output flags only make sense for discover; spec renders its own document
	discoverCmd.Flags().BoolVar(&prettyOutput, "pretty", true, "Pretty-print JSON output")
	discoverCmd.Flags().BoolVar(&streamMode, "stream", false, "Stream per-parameter events as they are scored")
	discoverCmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress counter on stderr")
	specCmd.Flags().BoolVar(&prettyOutput, "pretty", true, "Pretty-print the OpenAPI document")

	// History flags
	historyCmd.Flags().StringVar(&stateFile, "state-file", "", "History database to read")
	historyCmd.Flags().StringVar(&historyURL, "url", "", "Show the stored result for this URL")
	historyCmd.Flags().StringVar(&historyMethod, "method", "POST", "Method of the stored result")
	historyCmd.MarkFlagRequired("state-file")

	// Serve flags
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Listen address")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Listen port")
	serveCmd.Flags().StringVar(&stateFile, "state-file", "", "History database for run persistence")

	// Add commands
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	opts := []discovery.Option{discovery.WithConfig(config)}
	if showProgress && !verbose {
		opts = append(opts, discovery.WithProgress(progressLine(os.Stderr)))
	}

	d, err := discovery.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create discoverer: %w", err)
	}

	h := shutdown.New(shutdown.Config{
		OnShutdownStart: func() {
			fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		},
	})
	h.RegisterFunc("discovery", d.Stop)
	h.ListenAndShutdown()

	printBanner(config)

	startTime := time.Now()
	result, err := d.Run(h.Context())
	duration := time.Since(startTime)

	if err != nil && h.Context().Err() == nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if result != nil {
		printSummary(result, duration)
	}

	return nil
}

func runSpec(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	// The result document is consumed here, not printed; the spec is the
	// only thing that reaches the output.
	d, err := discovery.New(
		discovery.WithConfig(config),
		discovery.WithOutput(io.Discard),
	)
	if err != nil {
		return fmt.Errorf("failed to create discoverer: %w", err)
	}

	h := shutdown.New(shutdown.Config{
		OnShutdownStart: func() {
			fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		},
	})
	h.RegisterFunc("discovery", d.Stop)
	h.ListenAndShutdown()

	result, err := d.Run(h.Context())
	if err != nil && h.Context().Err() == nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if result == nil {
		return nil
	}

	doc := specgen.Generate(result)
	var data []byte
	if prettyOutput {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("failed to encode spec: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("failed to write spec: %w", err)
		}
		return nil
	}
	fmt.Println(string(data))

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := state.NewBoltStore(stateFile)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	if historyURL != "" {
		rec, err := store.Load(historyURL, historyMethod)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("no stored result for %s %s", strings.ToUpper(historyMethod), historyURL)
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No stored results")
		return nil
	}

	fmt.Printf("%-19s  %-6s  %10s  %s\n", "STORED", "METHOD", "PARAMETERS", "URL")
	for _, rec := range records {
		fmt.Printf("%-19s  %-6s  %10d  %s\n",
			rec.StoredAt.Format("2006-01-02 15:04:05"),
			rec.Result.Method,
			rec.Result.Meta.TotalParameters,
			rec.Result.URL)
	}

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logger.InfoLevel
	if debug {
		level = logger.DebugLevel
	}
	log := logger.New(logger.Config{
		Level:     level,
		Pretty:    true,
		Output:    os.Stderr,
		Component: "api",
	})

	h := shutdown.New(shutdown.Config{
		OnShutdownStart: func() {
			fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		},
	})

	opts := []api.Option{api.WithLogger(log)}
	if stateFile != "" {
		store, err := state.NewBoltStore(stateFile)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		// Registered before the server so teardown drains requests first.
		h.Register("history-store", func(ctx context.Context) error {
			return store.Close()
		})
		opts = append(opts, api.WithStore(store))
	}

	srv := api.New(api.Config{Host: serveHost, Port: servePort}, opts...)
	h.RegisterServer("http-server", srv)

	errCh := srv.Start()
	h.ListenAndShutdown()

	fmt.Fprintf(os.Stderr, "OpenProbe v%s serving on http://%s\n", version, srv.Addr())
	fmt.Fprintln(os.Stderr, "Endpoints:")
	fmt.Fprintln(os.Stderr, "  GET  /health           - Health check")
	fmt.Fprintln(os.Stderr, "  POST /api/v1/discover  - Run parameter discovery")
	fmt.Fprintln(os.Stderr, "  POST /api/v1/spec      - Generate an OpenAPI document")
	fmt.Fprintln(os.Stderr, "  GET  /api/v1/history   - Stored results")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		<-h.Done()
	case <-h.Done():
	}

	return nil
}

// buildConfig assembles the discovery configuration: defaults, then the
// config file, then command-line flags on top.
func buildConfig(cmd *cobra.Command, target string) (*discovery.Config, error) {
	config := discovery.DefaultConfig()

	if configFile != "" {
		fileConfig, err := discovery.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	config.Target = target

	// Override with command-line flags if provided
	if cmd.Flags().Changed("method") {
		config.Method = method
	}
	if cmd.Flags().Changed("timeout") {
		config.TimeoutSeconds = timeout
	}
	if cmd.Flags().Changed("workers") {
		config.Workers = workers
	}
	if cmd.Flags().Changed("request-cap") {
		config.RequestCap = requestCap
	}
	if cmd.Flags().Changed("rate-limit") {
		config.RateLimit.RequestsPerSecond = rateLimit
	}
	if cmd.Flags().Changed("burst") {
		config.RateLimit.Burst = burst
	}
	if cmd.Flags().Changed("content-type") {
		config.ContentType = contentType
	}
	if cmd.Flags().Changed("pretty") {
		config.Output.Pretty = prettyOutput
	}
	if cmd.Flags().Changed("stream") {
		config.Output.Stream = streamMode
	}

	if len(headerFlags) > 0 {
		headers, err := parseHeaders(headerFlags)
		if err != nil {
			return nil, err
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		for name, value := range headers {
			config.Headers[name] = value
		}
	}

	if seedBody != "" {
		seed := make(map[string]interface{})
		if err := json.Unmarshal([]byte(seedBody), &seed); err != nil {
			return nil, fmt.Errorf("failed to parse seed body: %w", err)
		}
		config.SeedBody = seed
	}

	if useWordlist {
		config.Wordlist.Enabled = true
	}
	if wordlistFile != "" {
		config.Wordlist.Enabled = true
		config.Wordlist.Path = wordlistFile
	}

	if outputFile != "" {
		config.Output.FilePath = outputFile
	}
	if stateFile != "" {
		config.State.Enabled = true
		config.State.FilePath = stateFile
	}
	config.Verbose = verbose
	config.Debug = debug

	// Configure authentication
	switch authType {
	case "bearer":
		config.Auth = discovery.AuthConfig{
			Type:  "bearer",
			Token: token,
		}
	case "apikey":
		config.Auth = discovery.AuthConfig{
			Type:         "apikey",
			APIKey:       apiKey,
			APIKeyHeader: apiKeyHeader,
		}
	}

	return config, nil
}

// parseHeaders splits repeated --header flags on the first colon.
func parseHeaders(flags []string) (map[string]string, error) {
	headers := make(map[string]string, len(flags))
	for _, raw := range flags {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", raw)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// progressLine renders a single updating counter line on w. The callback
// runs on the pipeline goroutine, so plain counters are safe.
func progressLine(w io.Writer) func(output.ProgressStats) {
	var parameters, phases, failures int
	return func(s output.ProgressStats) {
		parameters += s.Parameters
		phases += s.Phases
		failures += s.Failures
		fmt.Fprintf(w, "\rphases %d/%d  parameters %d  failures %d",
			phases, len(param.OrchestrationPhases()), parameters, failures)
		if phases == len(param.OrchestrationPhases()) {
			fmt.Fprintln(w)
		}
	}
}

// printBanner writes the run header to stderr; stdout carries the result
// document.
func printBanner(config *discovery.Config) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║                        OpenProbe v1.0                        ║")
	fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Target:     %s\n", config.Target)
	fmt.Fprintf(os.Stderr, "Method:     %s\n", config.Method)
	fmt.Fprintf(os.Stderr, "Budget:     %ds\n", config.TimeoutSeconds)
	fmt.Fprintf(os.Stderr, "Workers:    %d\n", config.Workers)
	fmt.Fprintf(os.Stderr, "Rate Limit: %.0f req/s\n", config.RateLimit.RequestsPerSecond)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Starting discovery...")
	fmt.Fprintln(os.Stderr)
}

func printSummary(result *param.DiscoveryResult, duration time.Duration) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║                      Discovery Summary                       ║")
	fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Duration:         %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Requests Sent:    %d\n", result.Meta.RequestCount)
	fmt.Fprintf(os.Stderr, "Parameters Found: %d\n", result.Meta.TotalParameters)
	fmt.Fprintf(os.Stderr, "Partial Failures: %d\n", result.Meta.PartialFailures)
	if result.Meta.Classification != nil {
		fmt.Fprintf(os.Stderr, "Endpoint Type:    %s (confidence %.2f)\n",
			result.Meta.Classification.Type, result.Meta.Classification.Confidence)
	}
	if result.Meta.FrameworkSignal != nil && result.Meta.FrameworkSignal.Framework != param.FrameworkUnknown {
		fmt.Fprintf(os.Stderr, "Framework:        %s\n", result.Meta.FrameworkSignal.Framework)
	}
	fmt.Fprintln(os.Stderr)

	if len(result.Parameters) > 0 {
		fmt.Fprintln(os.Stderr, "Discovered Parameters:")
		for _, p := range result.Parameters {
			details := string(p.Type)
			if p.Required {
				details += ", required"
			}
			fmt.Fprintf(os.Stderr, "  [%s] %s (%s, confidence %.2f)\n",
				p.Location, p.Name, details, p.Confidence)
		}
		fmt.Fprintln(os.Stderr)
	}

	if len(result.Meta.Failures) > 0 {
		fmt.Fprintln(os.Stderr, "Partial Failures:")
		for _, f := range result.Meta.Failures {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", f.Phase, f.Message)
		}
		fmt.Fprintln(os.Stderr)
	}
}
