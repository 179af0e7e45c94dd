package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"offsync/internal/api"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		userID    string
		recordID  string
		recordKey string
		payload   string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <create|update|delete> <entity-type>",
		Short: "Record a mutation for later replay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			raw, err := readPayload(payload)
			if err != nil {
				return err
			}
			req := api.EnqueueRequest{
				UserID:     userID,
				Operation:  strings.ToLower(strings.TrimSpace(args[0])),
				EntityType: strings.TrimSpace(args[1]),
				RecordID:   strings.TrimSpace(recordID),
				RecordKey:  strings.TrimSpace(recordKey),
				Payload:    raw,
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				entry, err := q.Enqueue(cmd.Context(), tenant, req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s as %s\n", entry.Operation, entry.EntityType, entry.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", os.Getenv("USER"), "User that performed the mutation")
	cmd.Flags().StringVar(&recordID, "id", "", "Remote record id (update/delete)")
	cmd.Flags().StringVar(&recordKey, "key", "", "Client-side record key (creates, or records created offline)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON payload, or @file to read it from a file")
	return cmd
}

func readPayload(value string) (json.RawMessage, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	data := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		data = contents
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				entries, err := q.List(cmd.Context(), tenant, statuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if entries == nil {
						entries = []api.QueueEntry{}
					}
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Op", "Entity", "Record", "Status", "Retries", "Created", "Error"},
					buildEntryRows(entries),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, syncing, synced, failed)")
	return cmd
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show how many entries await replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				count, err := q.Pending(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.PendingResponse{TenantID: tenant, Pending: count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d pending\n", count)
				return nil
			})
		},
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay the tenant's pending entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				result, err := q.Sync(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Skipped {
					fmt.Fprintln(out, "Offline: sync skipped, entries remain pending")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Result", "Count"}, buildPassRows(result), []columnAlignment{alignLeft, alignRight}))
				if result.Failed > 0 {
					fmt.Fprintf(out, "Inspect failures with `offsync list --status failed` and retry with `offsync requeue`\n")
				}
				return nil
			})
		},
	}
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [entry-id...]",
		Short: "Move failed entries back to pending (all failed entries when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				count, err := q.Requeue(cmd.Context(), tenant, args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.CountResponse{Count: count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed entries\n", count)
				return nil
			})
		},
	}
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete the tenant's synced entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				count, err := q.Purge(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.CountResponse{Count: count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d synced entries\n", count)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := ctx.tenant()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				stats, err := q.Stats(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, buildStatsRows(stats), []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
