package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["component"] != "test" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("timestamp field missing")
	}
}

func TestNewLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "chatty"}, &buf)

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	if strings.Contains(buf.String(), `"debug"`) {
		t.Fatal("debug should be filtered at the default level")
	}
	if !strings.Contains(buf.String(), `"info"`) {
		t.Fatal("info should be written at the default level")
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "console"}, &buf)
	logger.Info().Msg("hello")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("console format should not emit JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("message missing: %q", buf.String())
	}
}

func TestOpenOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hordewatch.log")
	out, err := openOutput(path)
	if err != nil {
		t.Fatalf("openOutput: %v", err)
	}
	logger := New(Config{}, out)
	logger.Info().Msg("to file")
	if c, ok := out.(io.Closer); ok {
		_ = c.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "to file") {
		t.Fatalf("log file content %q, err %v", data, err)
	}
}

func TestOpenOutputFallsBackToStderr(t *testing.T) {
	out, err := openOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	if err == nil {
		t.Fatal("expected open error")
	}
	if out != os.Stderr {
		t.Fatalf("expected stderr fallback, got %T", out)
	}
}
