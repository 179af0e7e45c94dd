package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"offsync/internal/preflight"
	"offsync/internal/queue"
)

type healthReport struct {
	Checks   []preflight.Result   `json:"checks"`
	Database queue.DatabaseHealth `json:"database"`
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check directories, remote reachability and queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := healthReport{Checks: preflight.RunAll(cmd.Context(), cfg)}

			store, err := queue.Open(cfg)
			if err != nil {
				report.Database = queue.DatabaseHealth{DBPath: cfg.DatabasePath(), Error: err.Error()}
			} else {
				report.Database, err = store.CheckHealth(cmd.Context())
				store.Close()
				if err != nil && report.Database.Error == "" {
					report.Database.Error = err.Error()
				}
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range report.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			db := report.Database
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Queue database", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "Database path: %s\n", db.DBPath)
			fmt.Fprintf(out, "Database exists: %s\n", yesNo(db.DatabaseExists))
			fmt.Fprintf(out, "Readable: %s\n", yesNo(db.DatabaseReadable))
			fmt.Fprintf(out, "Schema version: %s\n", db.SchemaVersion)
			fmt.Fprintf(out, "queue_entries table present: %s\n", yesNo(db.TableExists))
			if len(db.MissingColumns) > 0 {
				missing := append([]string(nil), db.MissingColumns...)
				sort.Strings(missing)
				fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
			} else {
				fmt.Fprintln(out, "Missing columns: none")
			}
			fmt.Fprintf(out, "Integrity check: %s\n", yesNo(db.IntegrityCheck))
			fmt.Fprintf(out, "Total entries: %d\n", db.TotalEntries)
			if db.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", db.Error)
			}
			return nil
		},
	}
}
