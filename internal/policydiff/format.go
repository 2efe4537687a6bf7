package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	if len(r.Changes) > 0 {
		b.WriteString("\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "  %-24s %s → %s", c.Field+":", orNone(c.Old), orNone(c.New))
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	section := ""
	for _, rc := range r.RuleChanges {
		if rc.Section != section {
			section = rc.Section
			fmt.Fprintf(&b, "\n  %s:\n", section)
		}
		mark := "~"
		switch rc.Type {
		case "added":
			mark = "+"
		case "removed":
			mark = "-"
		}
		fmt.Fprintf(&b, "    %s %s", mark, rc.Rule)
		if rc.Comment != "" {
			fmt.Fprintf(&b, "  (%s)", rc.Comment)
		}
		b.WriteString("\n")
	}

	if r.Looser {
		b.WriteString("\nWARNING: the new policy admits something the old one rejected.\n")
	}
	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
