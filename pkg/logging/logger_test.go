package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestComponentLoggerAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	log := NewComponentLogger(New(&buf, "json", slog.LevelInfo, false), "weather")
	log.Info("hello")
	if !strings.Contains(buf.String(), `"component":"weather"`) {
		t.Fatalf("expected component attribute, got %s", buf.String())
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agronomist.log")
	log, closer, err := InitLogger(Config{Level: "info", Format: "text", File: path})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	log.Debug("hidden")
	log.Info("visible")
	_ = closer.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "visible") || strings.Contains(string(b), "hidden") {
		t.Fatalf("unexpected log file content: %s", b)
	}
}

func TestRotatingFileDefaults(t *testing.T) {
	f := RotatingFile(Config{File: "agronomist.log"})
	if f.MaxSize != DefaultMaxSizeMB || f.MaxBackups != DefaultMaxBackups {
		t.Fatalf("expected %dMB x %d, got %dMB x %d", DefaultMaxSizeMB, DefaultMaxBackups, f.MaxSize, f.MaxBackups)
	}
	f = RotatingFile(Config{File: "agronomist.log", MaxSizeMB: 1, MaxBackups: 7})
	if f.MaxSize != 1 || f.MaxBackups != 7 {
		t.Fatalf("explicit limits ignored: %+v", f)
	}
}

func TestInitLoggerRotatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agronomist.log")
	log, closer, err := InitLogger(Config{Format: "text", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	line := strings.Repeat("x", 64<<10)
	for i := 0; i < 20; i++ {
		log.Info("symptom report", "text", line)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected a rotated backup next to the log, got %d files", len(entries))
	}
}
