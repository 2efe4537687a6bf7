package redact

import "strings"

// Mode determines how much detail crosses the boundary.
type Mode string

const (
	ModeRedact Mode = "redact" // default: paths and hosts replaced by tokens
	ModeDetail Mode = "detail" // full detail, for isolated test installations
)

// ResolveMode determines the mode from the policy setting and an
// optional environment override (CHAINGATE_REDACT). The override wins:
//   - "always" → redact
//   - "never"  → detail
//   - ""       → policy setting
func ResolveMode(includeDetail bool, envOverride string) Mode {
	switch strings.ToLower(strings.TrimSpace(envOverride)) {
	case "always":
		return ModeRedact
	case "never":
		return ModeDetail
	}
	if includeDetail {
		return ModeDetail
	}
	return ModeRedact
}
