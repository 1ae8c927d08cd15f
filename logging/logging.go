// Package logging provides real-time log output for match servers.
// Lines look like: LEVEL TIMESTAMP [component] message key=value ...
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a config string ("debug", "INFO", ...) into a Level.
func ParseLevel(s string) (Level, error) {
	lvl := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[lvl]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// sink is shared by a logger and everything derived from it.
type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// Logger provides structured logging.
type Logger struct {
	sink      *sink
	component string
	matchID   string
}

// New creates a new Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{sink: &sink{output: os.Stdout, minLevel: LevelInfo}}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{sink: &sink{output: io.Discard, minLevel: LevelError}}
}

// WithComponent returns a logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{sink: l.sink, component: component, matchID: l.matchID}
}

// WithMatch returns a logger that adds match=<id> to every line.
func (l *Logger) WithMatch(matchID string) *Logger {
	return &Logger{sink: l.sink, component: l.component, matchID: matchID}
}

// SetLevel sets the minimum log level for this logger and its derivatives.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.minLevel = level
	l.sink.mu.Unlock()
}

// SetOutput sets the output writer for this logger and its derivatives.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if levelPriority[level] < levelPriority[l.sink.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := make(map[string]interface{})
	if len(fields) > 0 {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	if l.matchID != "" {
		merged["match"] = l.matchID
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.sink.output.Write([]byte(line))
}

// --- Match event helpers ---

// PlayerJoined logs a player joining or rejoining a match.
func (l *Logger) PlayerJoined(playerID string, rejoin bool) {
	l.Info("player_joined", map[string]interface{}{
		"player": playerID,
		"rejoin": rejoin,
	})
}

// PlayerLeft logs a player disconnecting or being removed.
func (l *Logger) PlayerLeft(playerID, reason string) {
	l.Info("player_left", map[string]interface{}{
		"player": playerID,
		"reason": reason,
	})
}

// TaskRequested logs an accepted task request.
func (l *Logger) TaskRequested(playerID, taskID string) {
	l.Debug("task_requested", map[string]interface{}{
		"player": playerID,
		"task":   taskID,
	})
}

// TaskRejected logs a rejected task request.
func (l *Logger) TaskRejected(playerID, taskID string, err error) {
	l.Info("task_rejected", map[string]interface{}{
		"player": playerID,
		"task":   taskID,
		"error":  err.Error(),
	})
}

// TaskStarted logs the client confirming it started a task.
func (l *Logger) TaskStarted(playerID, taskID string) {
	l.Debug("task_started", map[string]interface{}{
		"player": playerID,
		"task":   taskID,
	})
}

// TaskReleased logs an in-flight pairing returning to idle.
func (l *Logger) TaskReleased(playerID, taskID, outcome string) {
	l.Info("task_released", map[string]interface{}{
		"player":  playerID,
		"task":    taskID,
		"outcome": outcome,
	})
}

// TaskCompleted logs a completed pairing.
func (l *Logger) TaskCompleted(playerID, taskID string, duration time.Duration) {
	l.Info("task_completed", map[string]interface{}{
		"player":   playerID,
		"task":     taskID,
		"duration": duration.String(),
	})
}

// OutOfOrder logs an ignored protocol event.
func (l *Logger) OutOfOrder(playerID, taskID, event, state string) {
	l.Warn("out_of_order_event", map[string]interface{}{
		"code":   "OUT_OF_ORDER_EVENT",
		"player": playerID,
		"task":   taskID,
		"event":  event,
		"state":  state,
	})
}

// TaskBar logs a task bar broadcast.
func (l *Logger) TaskBar(value float64, seq uint64) {
	l.Debug("task_bar", map[string]interface{}{
		"value": fmt.Sprintf("%.3f", value),
		"seq":   seq,
	})
}
