// Package telemetry exports match events and traces task pairings.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// Exporter records match lifecycle events for offline analysis.
type Exporter interface {
	// Record buffers one event.
	Record(ev Event)
	// Flush sends any buffered events.
	Flush() error
	// Close flushes and releases the exporter.
	Close() error
}

// Event is one match lifecycle event, e.g. a completed task or a meeting.
type Event struct {
	Name      string                 `json:"name"`
	MatchID   string                 `json:"match_id"`
	PlayerID  string                 `json:"player_id,omitempty"`
	TaskID    string                 `json:"task_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewExporter creates an exporter for protocol "http", "file" or "noop".
func NewExporter(protocol, endpoint string) (Exporter, error) {
	switch protocol {
	case "http":
		return NewHTTPExporter(endpoint), nil
	case "file":
		return NewFileExporter(endpoint)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown event export protocol: %s", protocol)
	}
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// --- HTTP Exporter ---

const httpBatchSize = 100

// HTTPExporter posts batches of events as a JSON array.
type HTTPExporter struct {
	endpoint string
	client   *http.Client

	mu     sync.Mutex
	buffer []Event
}

// NewHTTPExporter creates an exporter posting to endpoint.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		buffer:   make([]Event, 0, httpBatchSize),
	}
}

func (e *HTTPExporter) Record(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, stamp(ev))
	if len(e.buffer) >= httpBatchSize {
		e.flush()
	}
}

func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush()
}

func (e *HTTPExporter) flush() error {
	if len(e.buffer) == 0 {
		return nil
	}

	data, err := json.Marshal(e.buffer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("event endpoint returned %d", resp.StatusCode)
	}

	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	return e.Flush()
}

// --- File Exporter ---

// FileExporter appends events to a JSON lines file.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileExporter opens path for appending.
func NewFileExporter(path string) (*FileExporter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return &FileExporter{file: file}, nil
}

func (e *FileExporter) Record(ev Event) {
	data, err := json.Marshal(stamp(ev))
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.file.Write(append(data, '\n'))
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	e.Flush()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all events.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) Record(Event)  {}
func (e *NoopExporter) Flush() error { return nil }
func (e *NoopExporter) Close() error { return nil }
