package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"offsync/internal/config"
	"offsync/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	content, err := os.ReadFile(cfg.LogFilePath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOrdersTenantFieldsFirst(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "sync")
	logger.Info("entry synced",
		logging.String("extra", "value"),
		logging.EntryID("e-1"),
		logging.Tenant("acme"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(content))
	if !strings.Contains(line, "INFO sync: entry synced tenant_id=acme entry_id=e-1 extra=value") {
		t.Fatalf("unexpected console line %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("pass skipped", logging.Tenant("acme"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(content, &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "pass skipped" || payload["tenant_id"] != "acme" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %#v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{
		Level:       "error",
		OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "applier missing", "applier_missing", logging.Tenant("acme"))

	events, _, err := hub.Fetch(context.Background(), 0, "", 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.EventType != "applier_missing" || evt.TenantID != "acme" {
		t.Fatalf("unexpected event %#v", evt)
	}
	if evt.Fields[logging.FieldErrorHint] == "" || evt.Fields[logging.FieldImpact] == "" {
		t.Fatalf("expected default hint and impact, got %#v", evt.Fields)
	}
}

func TestWarnWithContextKeepsCallerFields(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{
		Level:       "error",
		OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "entry replay failed", "entry_failed",
		logging.Tenant("acme"),
		logging.EntryID("0190c2d4"),
		logging.EventType("entry_rejected"),
		logging.String(logging.FieldErrorHint, "fix the payload"),
	)

	events, _, err := hub.Fetch(context.Background(), 0, "acme", 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.EventType != "entry_rejected" || evt.EntryID != "0190c2d4" {
		t.Fatalf("expected caller event type and entry id, got %#v", evt)
	}
	if evt.Fields[logging.FieldErrorHint] != "fix the payload" {
		t.Fatalf("expected caller hint to win, got %#v", evt.Fields)
	}
}

func TestStreamHubFiltersByTenantAndWaits(t *testing.T) {
	hub := logging.NewStreamHub(4)
	hub.Publish(logging.LogEvent{Message: "a", TenantID: "acme"})
	hub.Publish(logging.LogEvent{Message: "b", TenantID: "globex"})

	events, next, err := hub.Fetch(context.Background(), 0, "globex", 0, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 1 || events[0].Message != "b" || next != 2 {
		t.Fatalf("unexpected fetch result %#v next=%d", events, next)
	}

	done := make(chan []logging.LogEvent, 1)
	go func() {
		evts, _, _ := hub.Fetch(context.Background(), next, "acme", 0, true)
		done <- evts
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(logging.LogEvent{Message: "c", TenantID: "acme"})

	select {
	case evts := <-done:
		if len(evts) != 1 || evts[0].Message != "c" {
			t.Fatalf("unexpected waited events %#v", evts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := hub.Fetch(ctx, 100, "", 0, true); err == nil {
		t.Fatal("expected context error from cancelled wait")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	hub := logging.NewStreamHub(4)
	base, err := logging.New(logging.Options{
		OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithPassID(logging.WithTenant(context.Background(), "acme"), "pass-1")
	logging.WithContext(ctx, base).Info("pass started")

	events, _, _ := hub.Fetch(context.Background(), 0, "acme", 0, false)
	if len(events) != 1 || events[0].PassID != "pass-1" {
		t.Fatalf("unexpected events %#v", events)
	}
}
