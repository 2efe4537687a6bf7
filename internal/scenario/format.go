package scenario

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const maxSubject = 40

// FormatText renders run results as a per-scenario report followed by
// a tally of observed outcomes per mechanism.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	plural := "s"
	if len(results) == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "Checking %d scenario file%s...\n\n", len(results), plural)

	var cases, passed, failed int
	tally := make(map[string]map[string]int)
	for _, r := range results {
		cases += r.Total
		passed += r.Passed

		status := "PASS"
		if r.Failed > 0 {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(&b, "  %s  %s (%d/%d)\n", status, r.Name, r.Passed, r.Total)

		for _, c := range r.Cases {
			if c.Mechanism != "" && c.Actual != "" {
				if tally[c.Mechanism] == nil {
					tally[c.Mechanism] = make(map[string]int)
				}
				tally[c.Mechanism][c.Actual]++
			}
			if c.Passed {
				continue
			}
			fmt.Fprintf(&b, "    FAIL  case %d: %-6s %-*s expected %s, got %s\n",
				c.Index, c.Mechanism, maxSubject, shorten(c.Subject), c.Expected, c.Actual)
			if c.Reason != "" {
				fmt.Fprintf(&b, "          %s\n", c.Reason)
			}
		}
	}

	if len(tally) > 0 {
		b.WriteString("\n")
		mechs := make([]string, 0, len(tally))
		for m := range tally {
			mechs = append(mechs, m)
		}
		sort.Strings(mechs)
		for _, m := range mechs {
			counts := tally[m]
			fmt.Fprintf(&b, "  %-6s allow=%d deny=%d bypass=%d\n", m, counts["allow"], counts["deny"], counts["bypass"])
		}
	}

	fmt.Fprintf(&b, "\n%d of %d cases passed.", passed, cases)
	if failed > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failed, len(results))
	}
	b.WriteString("\n")
	return b.String()
}

func shorten(s string) string {
	if len(s) <= maxSubject {
		return s
	}
	return s[:maxSubject-3] + "..."
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
