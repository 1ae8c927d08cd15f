package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{" WARN ", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_DerivedShareOutput(t *testing.T) {
	var buf bytes.Buffer
	root := New()
	child := root.WithComponent("coordinator").WithMatch("ABC123")
	root.SetOutput(&buf)

	child.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "[coordinator]") {
		t.Errorf("expected component in log, got: %s", output)
	}
	if !strings.Contains(output, "match=ABC123") {
		t.Errorf("expected match field in log, got: %s", output)
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("x", map[string]interface{}{"b": 2, "a": 1})

	if !strings.Contains(buf.String(), "x a=1 b=2") {
		t.Errorf("fields not sorted: %s", buf.String())
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("test")
	logger.SetOutput(&buf)

	logger.Info("hello world", map[string]interface{}{"key": "value"})

	output := buf.String()
	if !strings.HasPrefix(output, "INFO ") {
		t.Errorf("expected line to start with 'INFO ', got: %s", output)
	}
	if !strings.Contains(output, "[test] hello world key=value") {
		t.Errorf("unexpected format: %s", output)
	}
}

func TestLogger_TaskEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelDebug)

	logger.TaskRequested("p1", "wires")
	logger.TaskCompleted("p1", "wires", 1500*time.Millisecond)
	logger.OutOfOrder("p1", "wires", "taskComplete", "active")

	output := buf.String()
	for _, want := range []string{"task_requested", "task_completed", "duration=1.5s", "WARN", "event=taskComplete"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in: %s", want, output)
		}
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing to see")
}
