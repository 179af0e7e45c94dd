package preflight

import (
	"context"
	"strings"

	"offsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if strings.TrimSpace(cfg.Remote.BaseURL) != "" {
		results = append(results, CheckRemote(ctx, cfg.Remote.BaseURL, cfg.Remote.Token))
	}

	if len(cfg.Tenants.Active) == 0 {
		results = append(results, Result{Name: "Tenants", Detail: "no active tenants configured"})
	} else {
		results = append(results, Result{Name: "Tenants", Passed: true, Detail: strings.Join(cfg.Tenants.Active, ", ")})
	}
	return results
}

// Failed filters results down to failed checks.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
