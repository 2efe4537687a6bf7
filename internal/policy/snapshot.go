package policy

import (
	"time"

	"github.com/ppiankov/chaingate/internal/breakglass"
	"github.com/ppiankov/chaingate/internal/classfilter"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/redact"
	"github.com/ppiankov/chaingate/internal/roles"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Snapshot is one immutable view of the policy. Every accessor is safe
// for concurrent use.
type Snapshot struct {
	Config   *Config
	Hash     string
	Version  uint64
	LoadedAt time.Time

	filter    *classfilter.Filter
	grants    roles.Grants
	roots     []sandbox.Root
	providers []sandbox.RootProvider
	redactor  *redact.Redactor
	overrides map[model.Mechanism]*breakglass.Token
	// state is the enforcement of each mechanism when the snapshot was
	// installed.
	state map[model.Mechanism]bool
}

func buildSnapshot(cfg *Config, hash string, exts []Extension, overrides map[model.Mechanism]*breakglass.Token) (*Snapshot, error) {
	patterns := cfg.ClassPatterns()
	var providers []sandbox.RootProvider
	for _, ext := range exts {
		if cc, ok := ext.(ClassContributor); ok {
			patterns = patterns.Merge(cc.ClassPatterns())
		}
		if rp, ok := ext.(sandbox.RootProvider); ok {
			providers = append(providers, rp)
		}
	}

	redactor, err := redact.New(cfg.Redact, redact.ResolveMode(cfg.Redact.IncludeDetail, cfg.RedactOverride))
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Config:    cfg,
		Hash:      hash,
		LoadedAt:  time.Now().UTC(),
		filter:    classfilter.New(patterns),
		grants:    roles.NewGrants(cfg.Grants...),
		roots:     cfg.StaticRoots(),
		providers: providers,
		redactor:  redactor,
		overrides: overrides,
	}, nil
}

// Filter returns the compiled class admission filter.
func (s *Snapshot) Filter() *classfilter.Filter {
	return s.filter
}

// Grants returns the work item types allowed under the granted role.
func (s *Snapshot) Grants() roles.Grants {
	return s.grants
}

// Redactor returns the redactor for externally visible detail.
func (s *Snapshot) Redactor() *redact.Redactor {
	return s.redactor
}

// Roots returns the permitted roots for a request: the roots derived
// from c, then static roots, then extension roots.
func (s *Snapshot) Roots(c sandbox.Context) []sandbox.Root {
	roots := c.Roots()
	roots = append(roots, s.roots...)
	for _, p := range s.providers {
		roots = append(roots, p.Roots(c)...)
	}
	return roots
}

// Enforced reports whether mech is enforced at now.
func (s *Snapshot) Enforced(mech model.Mechanism) bool {
	return s.enforcedAt(mech, time.Now())
}

func (s *Snapshot) enforcedAt(mech model.Mechanism, now time.Time) bool {
	if !s.Config.Enforcement.For(mech) {
		return false
	}
	return !s.overrides[mech].ActiveAt(now)
}

// Override returns the active kill-switch token for mech, or nil.
func (s *Snapshot) Override(mech model.Mechanism) *breakglass.Token {
	if t := s.overrides[mech]; t.IsActive() {
		return t
	}
	return nil
}

// MechanismStatus describes the enforcement state of one mechanism.
type MechanismStatus struct {
	Mechanism model.Mechanism `json:"mechanism"`
	Enforced  bool            `json:"enforced"`
	// Source is "config", "env" or "killswitch" when not enforced.
	Source    string     `json:"source,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	TokenID   string     `json:"token_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status returns the state of every mechanism in reporting order.
func (s *Snapshot) Status() []MechanismStatus {
	return s.statusAt(time.Now())
}

func (s *Snapshot) statusAt(now time.Time) []MechanismStatus {
	out := make([]MechanismStatus, 0, len(model.Mechanisms))
	for _, mech := range model.Mechanisms {
		st := MechanismStatus{Mechanism: mech, Enforced: s.enforcedAt(mech, now)}
		switch {
		case st.Enforced:
		case s.overrides[mech].ActiveAt(now):
			t := s.overrides[mech]
			st.Source = "killswitch"
			st.Reason = t.Reason
			st.TokenID = t.ID
			if !t.ExpiresAt.IsZero() {
				exp := t.ExpiresAt
				st.ExpiresAt = &exp
			}
		case s.disabledByEnv(mech):
			st.Source = "env"
			st.Reason = disableEnv[mech] + " is set"
		default:
			st.Source = "config"
			st.Reason = "enforcement." + configKey(mech) + " is false"
		}
		out = append(out, st)
	}
	return out
}

// Banners returns one standing warning per disabled mechanism.
func (s *Snapshot) Banners() []string {
	var banners []string
	for _, st := range s.Status() {
		if st.Enforced {
			continue
		}
		b := "WARNING: " + string(st.Mechanism) + " enforcement is DISABLED (" + st.Source + ": " + st.Reason + ")"
		if st.ExpiresAt != nil {
			b += " until " + st.ExpiresAt.UTC().Format(time.RFC3339)
		}
		banners = append(banners, b)
	}
	return banners
}

func (s *Snapshot) disabledByEnv(mech model.Mechanism) bool {
	for _, m := range s.Config.Disabled {
		if m == mech {
			return true
		}
	}
	return false
}

func configKey(mech model.Mechanism) string {
	switch mech {
	case model.MechanismRole:
		return "roles"
	case model.MechanismClass:
		return "classes"
	default:
		return "paths"
	}
}
