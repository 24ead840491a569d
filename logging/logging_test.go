package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lukemcguire/zombietrail/config"
)

func TestNewJSONCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Format: "json", Stderr: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := uuid.Parse(log.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", log.RunID, err)
	}

	log.Info().Int("pages", 3).Msg("crawl complete")
	log.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["run_id"] != log.RunID {
		t.Errorf("run_id = %v, want %s", entry["run_id"], log.RunID)
	}
	if entry["message"] != "crawl complete" || entry["pages"] != float64(3) {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewRunIDsDiffer(t *testing.T) {
	a, err := New(Options{Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	b, err := New(Options{Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if a.RunID == b.RunID {
		t.Error("two loggers share a run_id")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Format: "console", Stderr: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	log.Debug().Str("phase", "indexing").Msg("phase changed")
	if !strings.Contains(buf.String(), "phase changed") || !strings.Contains(buf.String(), "indexing") {
		t.Errorf("console output %q missing message or field", buf.String())
	}
}

func TestNewQuietDiscards(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Quiet: true, Stderr: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	log.Error().Msg("should not appear")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Options{Format: "json", File: path, Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	log.Warn().Msg("written to file")
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file %q missing message", data)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("New() with an unknown level should fail")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("New() with an unknown format should fail")
	}
	if _, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "run.log")}); err == nil {
		t.Error("New() with an unwritable file should fail")
	}
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig(config.LoggingConfig{Level: "warn", Format: "json", File: "x.log"})
	if opts.Level != "warn" || opts.Format != "json" || opts.File != "x.log" {
		t.Errorf("FromConfig() = %+v", opts)
	}
}
