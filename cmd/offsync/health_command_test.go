package main

import (
	"encoding/json"
	"testing"
)

func TestHealthReportsDatabaseAndChecks(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, "Data directory")
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Missing columns: none")

	out, _, err = runCLI(t, []string{"--json", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("health --json: %v", err)
	}
	var report healthReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Database.TableExists || report.Database.DBPath != env.cfg.DatabasePath() {
		t.Fatalf("unexpected database health %+v", report.Database)
	}
	if len(report.Checks) == 0 {
		t.Fatal("expected preflight checks")
	}
}
