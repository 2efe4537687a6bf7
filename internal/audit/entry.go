package audit

// Event classifies an audit entry.
type Event string

const (
	// EventDeny is an enforced rejection.
	EventDeny Event = "deny"
	// EventBypass is a rejection that did not apply because the
	// mechanism's kill-switch was active.
	EventBypass Event = "bypass"
	// EventKillswitch records a mechanism being disabled.
	EventKillswitch Event = "killswitch"
	// EventRestore records a mechanism being re-enabled.
	EventRestore Event = "restore"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are scalars so json.Marshal field order is fixed and
// hashing is reproducible.
type Entry struct {
	Timestamp  string `json:"ts"`
	Scope      string `json:"scope,omitempty"`
	Event      Event  `json:"event"`
	Mechanism  string `json:"mechanism"`
	Kind       string `json:"kind,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Side       string `json:"side,omitempty"`
	Killswitch bool   `json:"killswitch"`
	Reason     string `json:"reason"`
	PolicyHash string `json:"policy_hash"`
	PrevHash   string `json:"prev_hash"`
}
