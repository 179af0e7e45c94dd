package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"offsync/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity and per-tenant queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			status, err := client.Status(cmd.Context())
			if err != nil {
				if !api.IsAPIUnavailable(err) {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.DaemonStatus{Running: false})
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				return nil
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
			conn := status.Connectivity
			connText := conn.State
			if conn.Since != "" {
				connText += " since " + formatDisplayTime(conn.Since)
			}
			fmt.Fprintln(out, renderStatusLine("Connectivity", connectivityKind(conn.State), connText, colorize))
			if conn.LastProbeErr != "" {
				fmt.Fprintln(out, renderStatusLine("Last probe", statusWarn, conn.LastProbeErr, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
			appliers := "none"
			if len(status.Appliers) > 0 {
				appliers = strings.Join(status.Appliers, ", ")
			}
			fmt.Fprintln(out, renderStatusLine("Appliers", statusInfo, appliers, colorize))

			for _, tenant := range status.Tenants {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Tenant "+tenant.TenantID, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, buildStatsRows(tenant.Counts), []columnAlignment{alignLeft, alignRight}))
				if pass := tenant.LastPass; pass != nil {
					kind := statusOK
					if pass.Failed > 0 {
						kind = statusError
					} else if pass.Skipped {
						kind = statusWarn
					}
					fmt.Fprintln(out, renderStatusLine("Last pass", kind, describePass(*pass), colorize))
				}
			}
			return nil
		},
	}
}

func describePass(pass api.PassResult) string {
	if pass.Skipped {
		return "skipped (offline)"
	}
	return fmt.Sprintf("%d synced, %d failed, %d deferred, %d unhandled in %dms",
		pass.Synced, pass.Failed, pass.Deferred, pass.Unhandled, pass.DurationMS)
}
