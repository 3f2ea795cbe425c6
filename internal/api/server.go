// Package api serves the discovery pipeline over HTTP. The discovery
// endpoints always answer 200 with a structurally valid result document,
// even for runs that failed outright; request validation problems are the
// only client errors the service produces itself.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PentesterFlow/OpenProbe/internal/logger"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/state"
	"github.com/PentesterFlow/OpenProbe/pkg/discovery"
)

// Config holds the HTTP listener settings.
type Config struct {
	Host string
	Port int
}

// DefaultConfig returns settings for a local service.
func DefaultConfig() Config {
	return Config{
		Host: "127.0.0.1",
		Port: 8000,
	}
}

// Runner executes one discovery run on behalf of an API request. The
// request is normalized and validated before the runner sees it.
type Runner func(ctx context.Context, req *param.Request) (*param.DiscoveryResult, error)

// Server is the HTTP frontend for the pipeline.
type Server struct {
	cfg    Config
	log    *logger.Logger
	store  state.Store
	runner Runner
	engine *gin.Engine
	http   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStore attaches a result store. Runs started through the API persist
// to it, and the history endpoint reads from it.
func WithStore(st state.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithRunner replaces the default pipeline runner.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.runner = r }
}

// New assembles the router and the underlying http.Server.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewDefault()
	}
	if s.runner == nil {
		s.runner = s.runDiscovery
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(s.log))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": param.DiscoveryVersion,
		})
	})

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/discover", s.handleDiscover)
		v1.POST("/spec", s.handleSpec)
		v1.GET("/history", s.handleHistory)
	}

	s.engine = engine
	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     engine,
		ReadTimeout: 30 * time.Second,
		// A discovery run holds its response open for the whole probe
		// budget, so writes must be allowed to outlast the 120s request
		// timeout ceiling.
		WriteTimeout:   150 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start begins serving in the background. The returned channel receives
// the listener error when the server stops for any reason other than
// Shutdown.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("API server listening")
		errCh <- s.http.ListenAndServe()
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// runDiscovery is the default runner: a full pipeline run per request,
// persisted to the server store when one is attached.
func (s *Server) runDiscovery(ctx context.Context, req *param.Request) (*param.DiscoveryResult, error) {
	opts := []discovery.Option{
		discovery.WithTarget(req.URL),
		discovery.WithMethod(req.Method),
		discovery.WithTimeout(time.Duration(req.TimeoutSeconds) * time.Second),
		discovery.WithOutput(io.Discard),
		discovery.WithLogger(s.log.WithComponent("discovery")),
	}
	if req.ContentType != "" {
		opts = append(opts, discovery.WithContentType(req.ContentType))
	}
	if len(req.Headers) > 0 {
		opts = append(opts, discovery.WithHeaders(req.Headers))
	}
	if len(req.SeedBody) > 0 {
		opts = append(opts, discovery.WithSeedBody(req.SeedBody))
	}
	switch req.Auth.Type {
	case param.AuthBearer:
		opts = append(opts, discovery.WithBearerToken(req.Auth.Token))
	case param.AuthAPIKey:
		opts = append(opts, discovery.WithAPIKey(req.Auth.APIKey, req.Auth.HeaderName))
	}
	if s.store != nil {
		opts = append(opts, discovery.WithStore(s.store))
	}

	d, err := discovery.New(opts...)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx)
}
