package game

import (
	"time"

	"github.com/vinayprograms/taskparty/bus"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/ratelimit"
	"github.com/vinayprograms/taskparty/state"
	"github.com/vinayprograms/taskparty/telemetry"
)

// Settings are the per-match rules.
type Settings struct {
	// TasksPerPlayer limits each player's required tasks (0 = all tasks).
	TasksPerPlayer int

	// MaxPlayers caps the number of seats (0 = unlimited).
	MaxPlayers int

	// ReconnectGrace is how long a disconnected player keeps their seat.
	// Zero removes them immediately.
	ReconnectGrace time.Duration

	// ReportTimeout bounds how long a reporter may take to confirm.
	ReportTimeout time.Duration

	// RequestLimit throttles each player's requestTask and reportBody
	// calls. The zero value does not throttle.
	RequestLimit ratelimit.Config
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:     15,
		ReconnectGrace: 30 * time.Second,
		ReportTimeout:  15 * time.Second,
		RequestLimit:   ratelimit.Config{Burst: 10, Window: time.Second},
	}
}

type options struct {
	log      *logging.Logger
	tracer   *telemetry.Tracer
	exporter telemetry.Exporter
	bus      bus.MessageBus
	progress *state.ProgressStore
	settings Settings
}

// Option configures a Manager and the coordinators it creates.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithTracer sets the tracer for match spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithExporter records match events to an exporter.
func WithExporter(e telemetry.Exporter) Option {
	return func(o *options) {
		o.exporter = e
	}
}

// WithBus publishes match events on a message bus and answers snapshot
// requests from it.
func WithBus(b bus.MessageBus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// WithProgressStore persists player progress so it survives a session.
func WithProgressStore(p *state.ProgressStore) Option {
	return func(o *options) {
		o.progress = p
	}
}

// WithSettings sets the match rules.
func WithSettings(s Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:      logging.Discard(),
		tracer:   telemetry.GetTracer(),
		exporter: telemetry.NewNoopExporter(),
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
