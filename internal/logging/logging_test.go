package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raysh454/coinpilot/internal/logging"
)

func TestStdoutLogger_WritesJSONLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger("launch", &buf)

	l.Info("session created", logging.Field{Key: "session_id", Value: "abc"})

	var entry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry.Level != "info" || entry.Msg != "session created" || entry.Component != "launch" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["session_id"] != "abc" {
		t.Errorf("expected session_id field, got %v", entry.Fields)
	}
}

func TestStdoutLogger_WithCarriesFieldsAndComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger("root", &buf)

	child := l.With(logging.Field{Key: "component", Value: "steel"}, logging.Field{Key: "run_id", Value: "r1"})
	child.Error("release failed", logging.Field{Key: "error", Value: errors.New("boom")})

	line := buf.String()
	for _, want := range []string{`"component":"steel"`, `"run_id":"r1"`, `"error":"boom"`, `"level":"error"`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %s in %s", want, line)
		}
	}
}

func TestNewZapLogger_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := logging.NewZapLogger("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := logging.NewZapLogger("loud", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestZapLogger_ForwardsFields(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	l := logging.FromZap(zap.New(core))

	l.With(logging.Field{Key: "component", Value: "coinapi"}).
		Warn("coin api error", logging.Field{Key: "status", Value: 500})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "coinapi" {
		t.Errorf("expected logger name coinapi, got %q", entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["status"]; got != int64(500) {
		t.Errorf("expected status 500, got %v (%T)", got, got)
	}
}
