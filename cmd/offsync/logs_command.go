package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"offsync/internal/api"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		since  uint64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			tenantFilter := ""
			if ctx.tenantFlag != nil {
				tenantFilter = strings.TrimSpace(*ctx.tenantFlag)
			}
			out := cmd.OutOrStdout()
			cursor := since
			for first := true; ; first = false {
				resp, err := client.Logs(cmd.Context(), api.LogQuery{
					Since:    cursor,
					Limit:    limit,
					Follow:   follow && !first,
					TenantID: tenantFilter,
				})
				if err != nil {
					if follow && errors.Is(err, context.Canceled) {
						return nil
					}
					if api.IsAPIUnavailable(err) {
						return fmt.Errorf("daemon not reachable: %w", err)
					}
					return err
				}
				for _, evt := range resp.Events {
					if ctx.JSONMode() {
						if err := writeJSON(cmd, evt); err != nil {
							return err
						}
						continue
					}
					printLogEvent(out, evt)
				}
				if resp.Next > cursor {
					cursor = resp.Next
				}
				if !follow {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().Uint64Var(&since, "since", 0, "Only show events after this sequence number")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum events per page")
	return cmd
}

func printLogEvent(w io.Writer, evt api.LogEvent) {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format(displayTimeLayout))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(evt.Level)))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	b.WriteString(" " + evt.Message)
	if evt.TenantID != "" {
		b.WriteString(" tenant=" + evt.TenantID)
	}
	if evt.EntryID != "" {
		b.WriteString(" entry=" + evt.EntryID)
	}
	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for key := range evt.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			b.WriteString(" " + key + "=" + evt.Fields[key])
		}
	}
	fmt.Fprintln(w, b.String())
}
