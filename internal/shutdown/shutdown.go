// Package shutdown coordinates orderly teardown of long-running commands.
// A Handler owns the interrupt signals and the context probe work runs
// under; named cleanup callbacks registered against it execute LIFO under
// a single deadline once a signal arrives, so an in-flight discovery run
// stops before the store or server it writes to.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ShutdownCallback is one named cleanup step. It receives a context that
// expires when the teardown deadline passes.
type ShutdownCallback func(ctx context.Context) error

// Config holds shutdown behavior.
type Config struct {
	Timeout         time.Duration
	Signals         []os.Signal
	OnShutdownStart func()
	OnShutdownDone  func(elapsed time.Duration, errs []error)
}

// DefaultConfig listens for SIGINT and SIGTERM with a 30 second teardown
// deadline.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler runs registered cleanup callbacks when a shutdown signal
// arrives or Shutdown is called directly.
type Handler struct {
	mu            sync.Mutex
	callbacks     []ShutdownCallback
	callbackNames []string

	shuttingDown atomic.Bool
	done         chan struct{}
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal

	onStart func()
	onDone  func(elapsed time.Duration, errs []error)
}

// New creates a handler and starts listening for the configured signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		onStart: cfg.OnShutdownStart,
		onDone:  cfg.OnShutdownDone,
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	return h
}

// NewDefault creates a handler with DefaultConfig.
func NewDefault() *Handler {
	return New(DefaultConfig())
}

// Register adds a named cleanup callback. Callbacks run in reverse
// registration order.
func (h *Handler) Register(name string, callback ShutdownCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, callback)
	h.callbackNames = append(h.callbackNames, name)
}

// RegisterFunc adds a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// GracefulServer is anything that drains with a deadline, like
// *http.Server.
type GracefulServer interface {
	Shutdown(ctx context.Context) error
}

// RegisterServer adds a server's Shutdown as a cleanup callback.
func (h *Handler) RegisterServer(name string, server GracefulServer) {
	h.Register(name, server.Shutdown)
}

// Context returns the context long-running work should run under. It is
// cancelled the moment shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown reports whether shutdown has begun.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Done returns a channel closed once every callback has finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until a signal arrives, then runs the shutdown sequence.
// It returns immediately if shutdown already started elsewhere.
func (h *Handler) Wait() {
	select {
	case <-h.sigChan:
		h.Shutdown()
	case <-h.ctx.Done():
	}
}

// ListenAndShutdown waits for a signal in the background and returns the
// completion channel.
func (h *Handler) ListenAndShutdown() <-chan struct{} {
	go h.Wait()
	return h.done
}

// Shutdown cancels the handler context and runs all callbacks LIFO under
// the teardown deadline. Only the first call acts; later calls return
// immediately.
func (h *Handler) Shutdown() {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	start := time.Now()
	if h.onStart != nil {
		h.onStart()
	}

	h.cancel()

	deadline, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := make([]ShutdownCallback, len(h.callbacks))
	names := make([]string, len(h.callbackNames))
	copy(callbacks, h.callbacks)
	copy(names, h.callbackNames)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := h.executeCallback(deadline, names[i], callbacks[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if h.onDone != nil {
		h.onDone(time.Since(start), errs)
	}
	close(h.done)
}

// executeCallback runs one callback, converting a blown deadline into a
// TimeoutError. The callback goroutine is abandoned on timeout.
func (h *Handler) executeCallback(ctx context.Context, name string, callback ShutdownCallback) error {
	result := make(chan error, 1)
	go func() {
		result <- callback(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// Trigger injects a shutdown signal, for programmatic teardown and tests.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
		// Signal already pending
	}
}

// TimeoutError reports a callback that did not finish before the
// teardown deadline.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
