package log

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

func newCaptureLogger(level Level, formatter Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewWriterOutput(&buf)),
	)
	return logger, &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"Info":    InfoLevel,
		"WARN":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("shout"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelGating(t *testing.T) {
	logger, buf := newCaptureLogger(WarnLevel, &TextFormatter{DisableTimestamp: true})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("low-level entries leaked: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing: %q", out)
	}
}

func TestJSONFormatterFields(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &JSONFormatter{})

	logger.With(Component("engine")).Info("popped",
		Str("queue", "prints"),
		Int("count", 3),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if entry["msg"] != "popped" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Fatalf("level = %v", entry["level"])
	}
	if entry["queue"] != "prints" {
		t.Fatalf("queue = %v", entry["queue"])
	}
	if entry[ComponentKey] != "engine" {
		t.Fatalf("component = %v", entry[ComponentKey])
	}
	if entry["count"] != float64(3) {
		t.Fatalf("count = %v", entry["count"])
	}
}

func TestTextFormatterShape(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})

	logger.WithComponent("server").Info("listening", Str("http", ":8080"))

	got := strings.TrimSpace(buf.String())
	want := "INFO [server] listening http=:8080"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDerivedLoggersDoNotMutateParent(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})

	derived := logger.WithField("worker", "w1")
	derived.Info("leased")
	logger.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "worker=w1") {
		t.Fatalf("derived entry missing field: %q", lines[0])
	}
	if strings.Contains(lines[1], "worker=w1") {
		t.Fatalf("parent entry gained field: %q", lines[1])
	}
}

func TestApplyConfig(t *testing.T) {
	logger, err := ApplyConfig(&Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if logger.GetLevel() != ErrorLevel {
		t.Fatalf("level = %v", logger.GetLevel())
	}

	if _, err := ApplyConfig(&Config{Level: "loudest"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestJSONFormatterCaller(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &JSONFormatter{})

	logger.Info("started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	caller, ok := entry["caller"].(string)
	if !ok || caller == "" {
		t.Fatalf("caller missing: %v", entry["caller"])
	}
	file, line, found := strings.Cut(caller, ":")
	if !found || !strings.HasSuffix(file, ".go") {
		t.Fatalf("caller file malformed: %q", caller)
	}
	if n, err := strconv.Atoi(line); err != nil || n <= 0 {
		t.Fatalf("caller line malformed: %q", caller)
	}
}

func TestErrField(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v", f)
	}
}
