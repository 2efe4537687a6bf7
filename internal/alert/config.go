package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["deny", "bypass", "killswitch", "restore"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event types.
const (
	TypeDeny       = "deny"
	TypeBypass     = "bypass"
	TypeKillswitch = "killswitch"
	TypeRestore    = "restore"
)

// Event is the payload sent to webhook endpoints. Reason is the
// redacted reason; raw paths stay in server logs.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	Scope      string `json:"scope,omitempty"`
	Mechanism  string `json:"mechanism"`
	Kind       string `json:"kind,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Side       string `json:"side,omitempty"`
	Reason     string `json:"reason"`
	Killswitch bool   `json:"killswitch"`
	PolicyHash string `json:"policy_hash,omitempty"`
}
