package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/services"
)

func TestNewJSONWritesStructuredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "curator.log")
	logger, err := New(Options{Level: "info", Format: "json", OutputPaths: []string{path}, ErrorOutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("item classified", String(FieldItemID, "42"), Float64("score", 12.5))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &payload); err != nil {
		t.Fatalf("decode log line %q: %v", data, err)
	}
	if payload["msg"] != "item classified" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %v", payload)
	}
	if payload[FieldItemID] != "42" {
		t.Fatalf("expected item_id 42, got %v", payload[FieldItemID])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestPrettyHandlerFormatsSubject(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false, false))
	logger = NewComponentLogger(logger, "pipeline")

	ctx := services.WithItemID(context.Background(), "177013")
	ctx = services.WithStage(ctx, "download")
	WithContext(ctx, logger).Info("assets fetched", Int("fetched", 3), Error(errors.New("one asset lost")))

	line := buf.String()
	for _, want := range []string{"INFO", "[pipeline]", "Item #177013 (download)", "assets fetched", "fetched=3", `error="one asset lost"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\033[") {
		t.Fatalf("expected no ANSI codes when colour disabled: %q", line)
	}
}

func TestPrettyHandlerColorizesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false, true))
	logger.Warn("slow source")
	if !strings.Contains(buf.String(), ansiYellow+"WARN"+ansiReset) {
		t.Fatalf("expected coloured level, got %q", buf.String())
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false, false))
	WarnWithContext(logger, "resolve failed", "resolve_failed", String(FieldImpact, "item dropped"))
	line := buf.String()
	if !strings.Contains(line, "event_type=resolve_failed") {
		t.Fatalf("missing event type: %q", line)
	}
	if !strings.Contains(line, `error_hint="inspect the item id in the log file"`) {
		t.Fatalf("missing default hint: %q", line)
	}
	if !strings.Contains(line, `impact="item dropped"`) {
		t.Fatalf("caller impact should win: %q", line)
	}
}

func TestErrorWithContextKeepsCallerHint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false, false))
	ErrorWithContext(logger, "run failed", "run_failed", String(FieldErrorHint, "raise pipeline.total_timeout"))
	line := buf.String()
	if !strings.Contains(line, "event_type=run_failed") {
		t.Fatalf("missing event type: %q", line)
	}
	if !strings.Contains(line, `error_hint="raise pipeline.total_timeout"`) {
		t.Fatalf("caller hint should win: %q", line)
	}
	if strings.Contains(line, "impact=") {
		t.Fatalf("error lines carry no impact: %q", line)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not be enabled")
	}
	WithContext(context.Background(), nil).Info("ignored")
}
