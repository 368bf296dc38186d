package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"neocore/logging"
)

func TestConsoleSinkFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, logging.ConsoleConfig{})
	err := sink.Write(logging.Event{
		Type:     "plugins.loaded",
		Frame:    7,
		Source:   logging.Plugin("hello"),
		Severity: logging.SeverityInfo,
		Message:  "ready",
		Payload:  map[string]string{"version": "1.0.0"},
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[plugins.loaded]", "frame=7", "source=plugin:hello", "severity=info", `msg="ready"`, `payload={"version":"1.0.0"}`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONSinkWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	when := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := sink.Write(logging.Event{Type: "test.one", Frame: 1, Time: when, Severity: logging.SeverityWarn}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Write(logging.Event{Type: "test.two", Frame: 2, Time: when}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("invalid json line: %v", err)
	}
	if decoded["type"] != "test.one" || decoded["severity"] != "warn" {
		t.Fatalf("unexpected decoded line: %+v", decoded)
	}
}

func TestJSONSinkPeriodicFlushStopsOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, time.Hour)
	if err := sink.Write(logging.Event{Type: "test.buffered"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !strings.Contains(buf.String(), "test.buffered") {
		t.Fatalf("expected close to flush buffered output, got %q", buf.String())
	}
}

func TestMemorySinkFiltersByType(t *testing.T) {
	sink := NewMemorySink()
	sink.Write(logging.Event{Type: "a"})
	sink.Write(logging.Event{Type: "b"})
	sink.Write(logging.Event{Type: "a"})
	if got := len(sink.EventsOfType("a")); got != 2 {
		t.Fatalf("expected 2 events of type a, got %d", got)
	}
	sink.Reset()
	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected reset to clear events, got %d", got)
	}
}

func TestZapSinkMapsSeverityAndFields(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sink := NewZap(zap.New(core))
	err := sink.Write(logging.Event{
		Type:     "bus.consumer_violation",
		Frame:    3,
		Source:   logging.Module("render"),
		Severity: logging.SeverityError,
		Extra:    map[string]any{"instance": "abc"},
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected one zap entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", entry.Level)
	}
	if entry.Message != "bus.consumer_violation" {
		t.Fatalf("expected type as message fallback, got %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["source"] != "render" || fields["instance"] != "abc" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}
