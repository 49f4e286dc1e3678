package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/septapod/agentmapper/internal/web"
)

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatInsight renders an insight for the terminal.
func formatInsight(resp web.InsightResponse) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(resp.Summary))
	b.WriteString("\n")

	switch {
	case resp.IsFallback:
		b.WriteString("\n(insights unavailable, showing fallback text)\n")

	case resp.WasCached:
		fmt.Fprintf(&b, "\n(cached, generated %s)\n", resp.GeneratedAt)

	case resp.GeneratedAt != "":
		fmt.Fprintf(&b, "\n(generated %s)\n", resp.GeneratedAt)
	}

	return b.String()
}

// formatSyncStatus renders the sync status for the terminal.
func formatSyncStatus(s web.SyncStatus) string {
	var b strings.Builder

	if !s.Configured {
		b.WriteString("Cloud sync: not configured\n")
	} else {
		b.WriteString("Cloud sync: configured\n")
	}

	org := s.OrgName
	if org == "" {
		org = "(unnamed)"
	}
	fmt.Fprintf(&b, "Organization: %s\n", org)

	if s.Sync.Connected() {
		fmt.Fprintf(&b, "Cloud org id: %s\n", s.Sync.CloudOrgID)
	} else {
		b.WriteString("Cloud org id: (not connected)\n")
	}

	fmt.Fprintf(&b, "Records: %d (revision %d)\n", s.Records, s.Revision)
	fmt.Fprintf(&b, "Status: %s\n", s.Sync.Status)

	switch {
	case s.Pending:
		b.WriteString("Unsynced changes: yes (push scheduled)\n")
	case s.Sync.Dirty:
		b.WriteString("Unsynced changes: yes\n")
	default:
		b.WriteString("Unsynced changes: no\n")
	}

	s.Sync.LastSyncedAt.WhenSome(func(t time.Time) {
		fmt.Fprintf(&b, "Last synced: %s\n",
			t.Local().Format(time.DateTime))
	})
	if s.Sync.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", s.Sync.LastError)
	}

	return b.String()
}

// formatRecords lists record ids and sizes, sorted by id.
func formatRecords(resp web.RecordsResponse) string {
	if len(resp.Records) == 0 {
		return "No records.\n"
	}

	ids := make([]string, 0, len(resp.Records))
	for id := range resp.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%-12s %6d bytes\n", id, len(resp.Records[id]))
	}
	fmt.Fprintf(&b, "\n%d records, revision %d\n", len(ids), resp.Revision)

	return b.String()
}
