package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/taskparty/logging"
)

// Phases of the party server. Lower phases shut down first.
const (
	PhaseListener  = 10
	PhaseMatches   = 20
	PhaseBackends  = 30
	PhaseTelemetry = 40
)

// Common errors.
var (
	// ErrAlreadyShutdown is returned by Shutdown while another call is in progress.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates the deadline passed before every phase ran.
	ErrTimeout = errors.New("shutdown timeout exceeded")
)

// Handler is implemented by components that need graceful shutdown.
// ctx is cancelled when the shutdown deadline passes.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// Closer adapts an io.Closer style function to Handler.
func Closer(close func() error) Handler {
	return HandlerFunc(func(context.Context) error {
		return close()
	})
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a shutdown.
type Result struct {
	Duration time.Duration
	Handlers []HandlerResult

	// Err joins every handler error, plus ErrTimeout if phases were skipped.
	Err error
}

// Failed returns the names of handlers that returned an error.
func (r *Result) Failed() []string {
	var failed []string
	for _, hr := range r.Handlers {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds shutdowns started by a signal.
	// Default: 15 seconds
	Timeout time.Duration

	// Logger receives one line per handler.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
	}
}
