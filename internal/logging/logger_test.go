package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info to be suppressed at LevelWarn, got: %s", buf.String())
	}

	logger.Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message in output, got: %s", buf.String())
	}
}

func TestLoggerFormatsKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debug("protocol trace", "tag", 5, "op", "READ")
	output := buf.String()
	if !strings.Contains(output, "tag=5") {
		t.Errorf("expected tag=5 in output, got: %s", output)
	}
	if !strings.Contains(output, "op=READ") {
		t.Errorf("expected op=READ in output, got: %s", output)
	}
}

func TestLoggerPrintfStyleVariants(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("bTag mismatch: got %d want %d", 7, 3)
	if !strings.Contains(buf.String(), "bTag mismatch: got 7 want 3") {
		t.Errorf("expected formatted message, got: %s", buf.String())
	}

	buf.Reset()
	logger.Warnf("drain exhausted after %d cycles", 100)
	if !strings.Contains(buf.String(), "drain exhausted after 100 cycles") {
		t.Errorf("expected formatted message, got: %s", buf.String())
	}
}

func TestDefaultLoggerIsSingletonUntilSet(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatal("expected Default() to return the same instance across calls")
	}

	var buf bytes.Buffer
	replacement := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(replacement)
	if Default() != replacement {
		t.Fatal("expected Default() to return the logger set by SetDefault")
	}

	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected global Info() to route through the default logger, got: %s", buf.String())
	}
}
