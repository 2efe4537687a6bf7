package policy

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/chaingate/internal/breakglass"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Transition is a change in whether a mechanism is enforced.
type Transition struct {
	Mechanism  model.Mechanism
	Enabled    bool
	Source     string // load, reload, toggle, expiry, register
	Reason     string
	Token      *breakglass.Token
	PolicyHash string
	At         time.Time
}

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// Tokens is read on every rebuild for overrides issued out of
	// process. Nil keeps overrides in memory only.
	Tokens *breakglass.Store
}

// Store holds the process-wide policy. Reads load an immutable
// snapshot and never block; writers serialize on mu and swap the
// snapshot atomically.
type Store struct {
	path   string
	logger *slog.Logger
	tokens *breakglass.Store
	now    func() time.Time

	snap atomic.Pointer[Snapshot]

	mu        sync.Mutex
	cfg       *Config
	hash      string
	version   uint64
	exts      []Extension
	toggles   map[model.Mechanism]*breakglass.Token
	observers []func(Transition)
}

// Open loads the policy file at path (empty means the default path)
// and returns a Store that reloads from it.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, hash, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	s := newStore(opts)
	s.path = path
	if err := s.update("load", func() error {
		s.cfg, s.hash = cfg, hash
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore returns a Store over an in-memory configuration. Reload keeps
// the configuration and re-reads override tokens.
func NewStore(cfg *Config, hash string, opts Options) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := newStore(opts)
	if err := s.update("load", func() error {
		s.cfg, s.hash = cfg, hash
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func newStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:  logger,
		tokens:  opts.Tokens,
		now:     time.Now,
		toggles: make(map[model.Mechanism]*breakglass.Token),
	}
}

// Path returns the policy file the store reloads from, or "".
func (s *Store) Path() string {
	return s.path
}

// Tokens returns the on-disk override store, or nil.
func (s *Store) Tokens() *breakglass.Store {
	return s.tokens
}

// Snapshot returns the current policy. If a kill-switch override has
// expired since the snapshot was built, enforcement is restored first.
func (s *Store) Snapshot() *Snapshot {
	snap := s.snap.Load()
	now := s.now()
	for _, t := range snap.overrides {
		if !t.ActiveAt(now) {
			if err := s.update("expiry", func() error { return nil }); err != nil {
				s.logger.Error("policy rebuild after override expiry failed", "error", err)
				return snap
			}
			return s.snap.Load()
		}
	}
	return snap
}

// Banners returns the standing kill-switch warnings.
func (s *Store) Banners() []string {
	return s.Snapshot().Banners()
}

// Subscribe registers fn to receive every enforcement transition.
// fn runs on the writer's goroutine after the new snapshot is visible.
func (s *Store) Subscribe(fn func(Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Toggle turns enforcement of mech off (enabled=false) or back on.
// Disabling requires a reason and accepts an optional expiry of at most
// one hour; zero means until restored. The returned token is nil when
// enabling. Enabling fails if the policy file or environment disables
// the mechanism.
func (s *Store) Toggle(mech model.Mechanism, enabled bool, reason string, duration time.Duration) (*breakglass.Token, error) {
	if _, ok := model.ParseMechanism(string(mech)); !ok {
		return nil, fmt.Errorf("unknown mechanism %q", mech)
	}

	if !enabled {
		tok, err := breakglass.Issue(mech, reason, duration)
		if err != nil {
			return nil, err
		}
		return tok, s.update("toggle", func() error {
			s.toggles[mech] = tok
			return nil
		})
	}

	return nil, s.update("toggle", func() error {
		if !s.cfg.Enforcement.For(mech) {
			return fmt.Errorf("%s enforcement is disabled by policy configuration or environment", mech)
		}
		delete(s.toggles, mech)
		if s.tokens != nil {
			if _, err := s.tokens.RevokeMechanism(mech); err != nil {
				return fmt.Errorf("revoke %s override tokens: %w", mech, err)
			}
		}
		return nil
	})
}

// Reload re-reads the policy file. On error the current snapshot stays.
func (s *Store) Reload() error {
	return s.update("reload", func() error {
		if s.path == "" {
			return nil
		}
		cfg, hash, err := LoadConfig(s.path)
		if err != nil {
			return err
		}
		s.cfg, s.hash = cfg, hash
		return nil
	})
}

// Register adds an extension. Names must be unique.
func (s *Store) Register(ext Extension) error {
	_, isClass := ext.(ClassContributor)
	_, isRoot := ext.(sandbox.RootProvider)
	if !isClass && !isRoot {
		return fmt.Errorf("extension %q contributes neither classes nor roots", ext.Name())
	}
	return s.update("register", func() error {
		for _, e := range s.exts {
			if e.Name() == ext.Name() {
				return fmt.Errorf("extension %q already registered", ext.Name())
			}
		}
		s.exts = append(s.exts, ext)
		return nil
	})
}

// update applies mutate and installs a rebuilt snapshot. If mutate or
// the rebuild fails, nothing changes. Note that mutate runs under mu.
func (s *Store) update(source string, mutate func() error) error {
	s.mu.Lock()
	saved := s.saveLocked()
	if err := mutate(); err != nil {
		s.restoreLocked(saved)
		s.mu.Unlock()
		return err
	}

	now := s.now()
	next, err := buildSnapshot(s.cfg, s.hash, s.exts, s.overridesLocked(now))
	if err != nil {
		s.restoreLocked(saved)
		s.mu.Unlock()
		return err
	}
	s.version++
	next.Version = s.version
	next.state = make(map[model.Mechanism]bool, len(model.Mechanisms))
	for _, mech := range model.Mechanisms {
		next.state[mech] = next.enforcedAt(mech, now)
	}
	prev := s.snap.Swap(next)
	transitions := diff(prev, next, source, now)
	observers := append([]func(Transition){}, s.observers...)
	s.mu.Unlock()

	for _, t := range transitions {
		s.log(t)
		for _, fn := range observers {
			fn(t)
		}
	}
	return nil
}

type savedState struct {
	cfg     *Config
	hash    string
	exts    []Extension
	toggles map[model.Mechanism]*breakglass.Token
}

func (s *Store) saveLocked() savedState {
	toggles := make(map[model.Mechanism]*breakglass.Token, len(s.toggles))
	for k, v := range s.toggles {
		toggles[k] = v
	}
	return savedState{cfg: s.cfg, hash: s.hash, exts: s.exts, toggles: toggles}
}

func (s *Store) restoreLocked(st savedState) {
	s.cfg, s.hash, s.exts, s.toggles = st.cfg, st.hash, st.exts, st.toggles
}

// overridesLocked merges on-disk tokens with in-memory toggles and drops
// everything no longer active. In-memory toggles win.
func (s *Store) overridesLocked(now time.Time) map[model.Mechanism]*breakglass.Token {
	out := make(map[model.Mechanism]*breakglass.Token)
	if s.tokens != nil {
		for mech, t := range s.tokens.Active() {
			if t.ActiveAt(now) {
				out[mech] = t
			}
		}
	}
	for mech, t := range s.toggles {
		if !t.ActiveAt(now) {
			delete(s.toggles, mech)
			continue
		}
		out[mech] = t
	}
	return out
}

func diff(prev, next *Snapshot, source string, now time.Time) []Transition {
	var out []Transition
	status := next.statusAt(now)
	for i, mech := range model.Mechanisms {
		was := prev == nil || prev.state[mech]
		is := next.state[mech]
		if was == is {
			continue
		}
		t := Transition{
			Mechanism:  mech,
			Enabled:    is,
			Source:     source,
			PolicyHash: next.Hash,
			At:         now.UTC(),
		}
		if is {
			if prev != nil && prev.overrides[mech] != nil {
				t.Token = prev.overrides[mech]
			}
		} else {
			t.Reason = status[i].Reason
			t.Token = next.overrides[mech]
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) log(t Transition) {
	attrs := []any{"mechanism", t.Mechanism, "source", t.Source, "policy_hash", t.PolicyHash}
	if t.Token != nil {
		attrs = append(attrs, "token", t.Token.ID)
	}
	if t.Enabled {
		s.logger.Info("enforcement restored", attrs...)
		return
	}
	attrs = append(attrs, "reason", t.Reason)
	if t.Token != nil && !t.Token.ExpiresAt.IsZero() {
		attrs = append(attrs, "expires_at", t.Token.ExpiresAt.Format(time.RFC3339))
	}
	s.logger.Warn("kill-switch engaged: enforcement disabled", attrs...)
}
