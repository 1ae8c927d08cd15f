// Package config loads the party server configuration from TOML.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/taskparty/logging"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Match     MatchConfig     `toml:"match"`
	Limits    LimitsConfig    `toml:"limits"`
	Bus       BusConfig       `toml:"bus"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// WebSocketConfig configures player connections.
type WebSocketConfig struct {
	MaxMessageSize int64    `toml:"max_message_size"`
	PingInterval   Duration `toml:"ping_interval"`
	ReadTimeout    Duration `toml:"read_timeout"`
	SendBuffer     int      `toml:"send_buffer"`
}

// MatchConfig configures matches.
type MatchConfig struct {
	// MapFile is the map.json every new match plays.
	MapFile string `toml:"map_file"`

	// AckTimeout bounds how long a device may take to accept doTask.
	AckTimeout Duration `toml:"ack_timeout"`

	// ReportTimeout bounds how long a device may take to confirm a report.
	ReportTimeout Duration `toml:"report_timeout"`

	// ReconnectGrace is how long a disconnected player keeps their seat.
	ReconnectGrace Duration `toml:"reconnect_grace"`

	// TasksPerPlayer limits each player's required tasks (0 = all tasks).
	TasksPerPlayer int `toml:"tasks_per_player"`

	// MaxPlayers caps players per match (0 = unlimited).
	MaxPlayers int `toml:"max_players"`
}

// LimitsConfig throttles clients. A zero burst disables a limit.
type LimitsConfig struct {
	// RequestBurst and RequestWindow bound each player's requestTask and
	// reportBody calls.
	RequestBurst  int      `toml:"request_burst"`
	RequestWindow Duration `toml:"request_window"`

	// CreateBurst and CreateWindow bound match creation per client address.
	CreateBurst  int      `toml:"create_burst"`
	CreateWindow Duration `toml:"create_window"`
}

// BusConfig selects where match events are published.
type BusConfig struct {
	// Backend is "memory" or "nats".
	Backend string `toml:"backend"`
	URL     string `toml:"url"`
	Name    string `toml:"name"`
	Token   string `toml:"token"`
}

// StoreConfig selects where player progress is persisted.
type StoreConfig struct {
	// Backend is "memory" or "nats". The nats backend shares the bus
	// connection and requires bus.backend = "nats".
	Backend string   `toml:"backend"`
	Bucket  string   `toml:"bucket"`
	TTL     Duration `toml:"ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig configures tracing and event export.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Protocol string `toml:"protocol"`
	Insecure bool   `toml:"insecure"`

	// Events is the match event exporter: "noop", "file" or "http".
	Events         string `toml:"events"`
	EventsEndpoint string `toml:"events_endpoint"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 64 * 1024,
			PingInterval:   Duration{15 * time.Second},
			ReadTimeout:    Duration{45 * time.Second},
			SendBuffer:     100,
		},
		Match: MatchConfig{
			MapFile:        "map.json",
			AckTimeout:     Duration{10 * time.Second},
			ReportTimeout:  Duration{10 * time.Second},
			ReconnectGrace: Duration{30 * time.Second},
		},
		Limits: LimitsConfig{
			RequestBurst:  10,
			RequestWindow: Duration{time.Second},
			CreateBurst:   5,
			CreateWindow:  Duration{time.Minute},
		},
		Bus: BusConfig{
			Backend: "memory",
			Name:    "taskparty",
		},
		Store: StoreConfig{
			Backend: "memory",
			Bucket:  "taskparty",
			TTL:     Duration{24 * time.Hour},
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
			Events:   "noop",
		},
	}
}

// Load reads path over the defaults and validates the result.
// Unknown keys are rejected so typos do not go unnoticed.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		add("websocket.max_message_size must be positive")
	}
	if c.Match.MapFile == "" {
		add("match.map_file is required")
	}
	if c.Match.AckTimeout.Duration <= 0 {
		add("match.ack_timeout must be positive")
	}
	if c.Match.ReportTimeout.Duration <= 0 {
		add("match.report_timeout must be positive")
	}
	if c.Match.ReconnectGrace.Duration < 0 {
		add("match.reconnect_grace must not be negative")
	}
	if c.Match.TasksPerPlayer < 0 {
		add("match.tasks_per_player must not be negative")
	}
	if c.Match.MaxPlayers < 0 {
		add("match.max_players must not be negative")
	}
	if c.Limits.RequestBurst < 0 || c.Limits.CreateBurst < 0 {
		add("limits bursts must not be negative")
	}
	if c.Limits.RequestBurst > 0 && c.Limits.RequestWindow.Duration <= 0 {
		add("limits.request_window must be positive when request_burst is set")
	}
	if c.Limits.CreateBurst > 0 && c.Limits.CreateWindow.Duration <= 0 {
		add("limits.create_window must be positive when create_burst is set")
	}

	switch c.Bus.Backend {
	case "memory":
	case "nats":
		if c.Bus.URL == "" {
			add("bus.url is required for the nats backend")
		}
	default:
		add("bus.backend must be memory or nats, got %q", c.Bus.Backend)
	}

	switch c.Store.Backend {
	case "memory":
	case "nats":
		if c.Bus.Backend != "nats" {
			add("store.backend nats requires bus.backend nats")
		}
		if c.Store.Bucket == "" {
			add("store.bucket is required for the nats backend")
		}
	default:
		add("store.backend must be memory or nats, got %q", c.Store.Backend)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		add("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	switch c.Telemetry.Events {
	case "noop", "":
	case "file", "http":
		if c.Telemetry.EventsEndpoint == "" {
			add("telemetry.events_endpoint is required for %s events", c.Telemetry.Events)
		}
	default:
		add("telemetry.events must be noop, file or http, got %q", c.Telemetry.Events)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
