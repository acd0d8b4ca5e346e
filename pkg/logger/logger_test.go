package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/wonny/aegis-t0/pkg/config"
)

func TestNew(t *testing.T) {
	cfg := &config.Config{
		LogLevel:  "info",
		LogFormat: "json",
		Env:       "development",
	}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New() returned nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.expected {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("limit breached")
	log.Errorf("stop hit at %.2f", 9.5)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["level"] != "warn" || lines[0]["message"] != "limit breached" {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	if lines[1]["message"] != "stop hit at 9.50" {
		t.Errorf("unexpected formatted message: %v", lines[1]["message"])
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.WithField("instrument_id", "600519").Info("scored")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["instrument_id"] != "600519" {
		t.Errorf("instrument_id missing: %v", lines[0])
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.WithFields(map[string]interface{}{
		"instrument_id": "600519",
		"price":         1712.5,
		"qty":           200,
	}).Info("order sized")

	line := decodeLines(t, &buf)[0]
	if line["price"] != 1712.5 {
		t.Errorf("price = %v", line["price"])
	}
	// JSON numbers decode as float64
	if line["qty"] != float64(200) {
		t.Errorf("qty = %v", line["qty"])
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").WithComponent("t0").Info("transition")

	line := decodeLines(t, &buf)[0]
	if line["component"] != "t0" {
		t.Errorf("component = %v", line["component"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").WithError(errors.New("bar out of order")).Error("integrity")

	line := decodeLines(t, &buf)[0]
	if line["error"] != "bar out of order" {
		t.Errorf("error field = %v", line["error"])
	}
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	// Must be safe to call every non-exiting method.
	log.Debug("x")
	log.Info("x")
	log.Warnf("x %d", 1)
	log.WithField("a", 1).WithComponent("b").Error("x")
	if log.Zerolog().GetLevel() != zerolog.Disabled {
		t.Errorf("nop logger should be disabled, got %v", log.Zerolog().GetLevel())
	}
}
