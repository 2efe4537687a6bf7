package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a QueryResult as a human-readable timeline.
func FormatTimeline(result *QueryResult) string {
	if len(result.Entries) == 0 {
		return "No audit entries found.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Audit: %s – %s UTC\n",
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp)))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		tag := ""
		if e.Killswitch {
			tag = "  [kill-switch]"
		}
		b.WriteString(fmt.Sprintf("%-10s %-10s %-6s %-11s %-40s%s\n",
			formatTimeOnly(e.Timestamp),
			strings.ToUpper(string(e.Event)),
			e.Mechanism,
			e.Side,
			truncate(e.Identifier, 40),
			tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a QueryResult as indented JSON.
func FormatJSON(result *QueryResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{}
	if s.DenyCount > 0 {
		parts = append(parts, fmt.Sprintf("%d deny", s.DenyCount))
	}
	if s.BypassCount > 0 {
		parts = append(parts, fmt.Sprintf("%d bypass", s.BypassCount))
	}
	if s.KillswitchCount > 0 {
		parts = append(parts, fmt.Sprintf("%d kill-switch", s.KillswitchCount))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d entries", s.Total))
	}

	var mech []string
	for _, m := range []string{"role", "class", "path"} {
		if n := s.ByMechanism[m]; n > 0 {
			mech = append(mech, fmt.Sprintf("%s=%d", m, n))
		}
	}
	return fmt.Sprintf("Summary: %s | %s\n", strings.Join(parts, ", "), strings.Join(mech, " "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
