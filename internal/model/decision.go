package model

// Kind classifies a security rejection.
type Kind string

const (
	KindUnauthorizedDirection  Kind = "UnauthorizedDirection"
	KindDeniedClass            Kind = "DeniedClass"
	KindPathEscape             Kind = "PathEscape"
	KindArchiveEntryEscape     Kind = "ArchiveEntryEscape"
	KindLegacyWorkItemRejected Kind = "LegacyWorkItemRejected"
)

// Decision is the outcome of one leaf check.
// Reason is for server-side logs. Redacted is safe to return to the
// requesting side.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Kind       Kind   `json:"kind,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Redacted   string `json:"redacted,omitempty"`
}

// Allow returns an allowing decision for identifier.
func Allow(identifier string) Decision {
	return Decision{Allowed: true, Identifier: identifier}
}

// Deny returns a denying decision. If redacted is empty, reason is used.
func Deny(kind Kind, identifier, reason, redacted string) Decision {
	if redacted == "" {
		redacted = reason
	}
	return Decision{
		Kind:       kind,
		Identifier: identifier,
		Reason:     reason,
		Redacted:   redacted,
	}
}

// MechanismFor returns the mechanism that produces decisions of kind k.
func MechanismFor(k Kind) Mechanism {
	switch k {
	case KindDeniedClass:
		return MechanismClass
	case KindPathEscape, KindArchiveEntryEscape:
		return MechanismPath
	default:
		return MechanismRole
	}
}
