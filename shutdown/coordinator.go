package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/taskparty/logging"
)

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Coordinator runs registered handlers phase by phase.
type Coordinator struct {
	cfg Config
	log *logging.Logger

	mu       sync.Mutex
	handlers []registration
	started  bool
	done     chan struct{}
	result   *Result
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Coordinator{
		cfg:  cfg,
		log:  log.WithComponent("shutdown"),
		done: make(chan struct{}),
	}
}

// Register adds a handler to a phase.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: h})
}

// RegisterFunc adds a function to a phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, HandlerFunc(fn))
}

// Shutdown runs every phase. Only the first call runs; later calls wait for
// it and return its error, or ErrAlreadyShutdown if ctx ends first.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		select {
		case <-c.done:
			return c.result.Err
		case <-ctx.Done():
			return ErrAlreadyShutdown
		}
	}
	c.started = true
	handlers := append([]registration(nil), c.handlers...)
	c.mu.Unlock()

	res := c.run(ctx, handlers)

	c.mu.Lock()
	c.result = res
	c.mu.Unlock()
	close(c.done)
	return res.Err
}

// ShutdownWithTimeout runs Shutdown with a deadline. Zero uses the
// configured timeout.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts a shutdown on SIGINT or SIGTERM.
func (c *Coordinator) HandleSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			c.log.Info("signal_received", map[string]interface{}{"signal": sig.String()})
			c.ShutdownWithTimeout(0)
		case <-c.done:
		}
		signal.Stop(sigs)
	}()
}

// Done is closed when a shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown result, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Coordinator) run(ctx context.Context, handlers []registration) *Result {
	start := time.Now()
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	res := &Result{}
	var errs []error
	for i := 0; i < len(handlers); {
		j := i
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		if ctx.Err() != nil {
			errs = append(errs, ErrTimeout)
			c.log.Warn("phases_skipped", map[string]interface{}{"from_phase": handlers[i].phase})
			break
		}
		for _, hr := range c.runPhase(ctx, handlers[i:j]) {
			res.Handlers = append(res.Handlers, hr)
			if hr.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", hr.Name, hr.Err))
			}
		}
		i = j
	}

	res.Err = errors.Join(errs...)
	res.Duration = time.Since(start)
	return res
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup
	for i, r := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			results[i] = HandlerResult{Name: r.name, Phase: r.phase, Duration: time.Since(start), Err: err}

			fields := map[string]interface{}{
				"handler":  r.name,
				"phase":    r.phase,
				"duration": results[i].Duration.Round(time.Millisecond).String(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.log.Warn("handler_failed", fields)
				return
			}
			c.log.Info("handler_done", fields)
		}()
	}
	wg.Wait()
	return results
}
