package main

import (
	"strings"
	"testing"

	"offsync/internal/api"
)

func TestBuildEntryRowsKeepsOrderAndTruncates(t *testing.T) {
	long := strings.Repeat("x", maxErrorWidth+10)
	rows := buildEntryRows([]api.QueueEntry{
		{ID: "b", Operation: "create", EntityType: "partners", RecordKey: "k1", Status: "pending", CreatedAt: "2026-01-02T03:04:05.000Z"},
		{ID: "a", Operation: "update", EntityType: "partners", RecordID: "42", Status: "failed", RetryCount: 2, ErrorMessage: long},
	})
	if len(rows) != 2 || rows[0][0] != "b" || rows[1][0] != "a" {
		t.Fatalf("unexpected row order %v", rows)
	}
	if rows[0][3] != "key:k1" || rows[1][3] != "42" {
		t.Fatalf("unexpected record labels %q %q", rows[0][3], rows[1][3])
	}
	if rows[1][4] != "Failed" || rows[1][5] != "2" {
		t.Fatalf("unexpected status columns %v", rows[1])
	}
	if got := []rune(rows[1][7]); len(got) != maxErrorWidth {
		t.Fatalf("expected error truncated to %d runes, got %d", maxErrorWidth, len(got))
	}
	if rows[0][7] != "-" || rows[1][6] != "-" {
		t.Fatalf("expected placeholders for empty fields: %v", rows)
	}
}

func TestBuildStatsRowsLifecycleOrder(t *testing.T) {
	rows := buildStatsRows(map[string]int{"failed": 1, "pending": 3, "synced": 2, "syncing": 0})
	var labels []string
	for _, row := range rows {
		labels = append(labels, row[0])
	}
	if strings.Join(labels, ",") != "Pending,Syncing,Synced,Failed" {
		t.Fatalf("unexpected order %v", labels)
	}
}

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Connectivity", connectivityKind("disconnected"), "offline", false)
	if !strings.Contains(line, "[WARN] offline") {
		t.Fatalf("unexpected line %q", line)
	}
	colored := renderStatusLine("Daemon", statusOK, "", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected ANSI colors, got %q", colored)
	}
}

func TestReadPayload(t *testing.T) {
	if raw, err := readPayload(""); err != nil || raw != nil {
		t.Fatalf("expected empty payload, got %q %v", raw, err)
	}
	if _, err := readPayload("{bad"); err == nil {
		t.Fatal("expected invalid JSON to fail")
	}
	if _, err := readPayload("@/does/not/exist.json"); err == nil {
		t.Fatal("expected missing file to fail")
	}
}
