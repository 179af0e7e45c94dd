package main

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"offsync/internal/api"
	"offsync/internal/queue"
)

const (
	displayTimeLayout = "2006-01-02 15:04:05"
	maxErrorWidth     = 48
)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(strings.ReplaceAll(status, "_", " "))
	if status == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(status)
}

func formatDisplayTime(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return t.Local().Format(displayTimeLayout)
}

func truncate(value string, width int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}

func recordLabel(entry api.QueueEntry) string {
	switch {
	case entry.RecordID != "" && entry.RecordKey != "":
		return entry.RecordID + " (" + entry.RecordKey + ")"
	case entry.RecordID != "":
		return entry.RecordID
	case entry.RecordKey != "":
		return "key:" + entry.RecordKey
	default:
		return "-"
	}
}

// buildEntryRows keeps replay order.
func buildEntryRows(entries []api.QueueEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		errText := "-"
		if entry.ErrorMessage != "" {
			errText = truncate(entry.ErrorMessage, maxErrorWidth)
		}
		rows = append(rows, []string{
			entry.ID,
			entry.Operation,
			entry.EntityType,
			recordLabel(entry),
			formatStatusLabel(entry.Status),
			strconv.Itoa(entry.RetryCount),
			formatDisplayTime(entry.CreatedAt),
			errText,
		})
	}
	return rows
}

// buildStatsRows lists statuses in lifecycle order.
func buildStatsRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		count, ok := stats[string(status)]
		if !ok {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
	}
	return rows
}

func buildPassRows(result api.PassResult) [][]string {
	return [][]string{
		{"Synced", strconv.Itoa(result.Synced)},
		{"Failed", strconv.Itoa(result.Failed)},
		{"Deferred", strconv.Itoa(result.Deferred)},
		{"Unhandled", strconv.Itoa(result.Unhandled)},
	}
}
