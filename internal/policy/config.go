package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/chaingate/internal/alert"
	"github.com/ppiankov/chaingate/internal/classfilter"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/redact"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Environment overrides read at load time.
const (
	EnvDisableRoles   = "CHAINGATE_DISABLE_ROLES"
	EnvDisableClasses = "CHAINGATE_DISABLE_CLASSES"
	EnvDisablePaths   = "CHAINGATE_DISABLE_PATHS"
	EnvClassOverrides = "CHAINGATE_CLASS_OVERRIDES"
	EnvRedact         = "CHAINGATE_REDACT"
)

var disableEnv = map[model.Mechanism]string{
	model.MechanismRole:  EnvDisableRoles,
	model.MechanismClass: EnvDisableClasses,
	model.MechanismPath:  EnvDisablePaths,
}

// Enforcement holds the per-mechanism kill-switches. True means the
// mechanism is enforced.
type Enforcement struct {
	Roles   bool `yaml:"roles"   json:"roles"`
	Classes bool `yaml:"classes" json:"classes"`
	Paths   bool `yaml:"paths"   json:"paths"`
}

// For returns the switch for mech.
func (e Enforcement) For(mech model.Mechanism) bool {
	switch mech {
	case model.MechanismRole:
		return e.Roles
	case model.MechanismClass:
		return e.Classes
	case model.MechanismPath:
		return e.Paths
	default:
		return true
	}
}

func (e *Enforcement) set(mech model.Mechanism, on bool) {
	switch mech {
	case model.MechanismRole:
		e.Roles = on
	case model.MechanismClass:
		e.Classes = on
	case model.MechanismPath:
		e.Paths = on
	}
}

// RootConfig is a static root in the policy file.
type RootConfig struct {
	Path      string           `yaml:"path"      json:"path"`
	Kind      sandbox.RootKind `yaml:"kind"      json:"kind"`
	Ops       []string         `yaml:"ops"       json:"ops"`
	Protected []string         `yaml:"protected" json:"protected"`
}

// Root converts rc to a sandbox root. Relative paths and unknown
// operations are rejected.
func (rc RootConfig) Root() (sandbox.Root, error) {
	if rc.Path == "" || !filepath.IsAbs(rc.Path) {
		return sandbox.Root{}, fmt.Errorf("root path %q must be absolute", rc.Path)
	}
	kind := rc.Kind
	if kind == "" {
		kind = sandbox.RootStatic
	}
	var ops []model.Operation
	for _, s := range rc.Ops {
		if s == "all" || s == "*" {
			ops = append(ops, model.Operation(s))
			continue
		}
		op, ok := model.ParseOperation(s)
		if !ok {
			return sandbox.Root{}, fmt.Errorf("root %s: unknown operation %q", rc.Path, s)
		}
		ops = append(ops, op)
	}
	r := sandbox.NewRoot(filepath.Clean(rc.Path), kind, ops...)
	r.Protected = rc.Protected
	return r, nil
}

// AuditConfig locates the denial audit log. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Config holds all configurable boundary parameters.
type Config struct {
	Enforcement Enforcement `yaml:"enforcement" json:"enforcement"`
	// Classes are operator class rules layered over the built-in set.
	Classes classfilter.Patterns `yaml:"classes" json:"classes"`
	// ClassOverrides is a string-encoded rule list ("a,!b,c.").
	ClassOverrides string `yaml:"class_overrides" json:"class_overrides"`
	// Grants are work item type names allowed under the granted role.
	Grants []string       `yaml:"grants" json:"grants"`
	Roots  []RootConfig   `yaml:"roots"  json:"roots"`
	Redact redact.Config  `yaml:"redact" json:"redact"`
	Audit  AuditConfig    `yaml:"audit"  json:"audit"`
	Alerts []alert.Config `yaml:"alerts" json:"alerts"`

	// RedactOverride is CHAINGATE_REDACT as read at load.
	RedactOverride string `yaml:"-" json:"-"`
	// Disabled records which mechanisms an environment variable turned off.
	Disabled []model.Mechanism `yaml:"-" json:"-"`
}

// DefaultConfig returns the built-in configuration: every mechanism
// enforced, no operator rules, no static roots.
func DefaultConfig() *Config {
	return &Config{
		Enforcement: Enforcement{Roles: true, Classes: true, Paths: true},
	}
}

// DefaultPath returns ~/.chaingate/policy.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chaingate", "policy.yaml")
}

// Fingerprint returns "blake3:<hex>" of raw policy bytes.
func Fingerprint(data []byte) string {
	h := blake3.Sum256(data)
	return fmt.Sprintf("blake3:%x", h[:])
}

// LoadConfig loads a policy file and returns it with its fingerprint.
// Empty path falls back to ~/.chaingate/policy.yaml. A missing file
// returns defaults and the fingerprint of empty input. Files ending in
// .json or .jsonc are parsed as JSON with comments, everything else as
// YAML. Environment overrides are applied last.
func LoadConfig(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read policy config: %w", err)
		}
	}

	cfg, err := ParseConfig(data, isJSON(path))
	if err != nil {
		return nil, "", err
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg, Fingerprint(data), nil
}

// ParseConfig parses raw policy bytes over the defaults.
func ParseConfig(data []byte, jsonSyntax bool) (*Config, error) {
	// Start with defaults, the file overwrites only specified fields.
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if jsonSyntax {
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse policy config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks roots and redaction patterns.
func (c *Config) Validate() error {
	for i, rc := range c.Roots {
		if _, err := rc.Root(); err != nil {
			return fmt.Errorf("roots[%d]: %w", i, err)
		}
	}
	if _, err := redact.CompilePatterns(c.Redact); err != nil {
		return fmt.Errorf("redact: %w", err)
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			return fmt.Errorf("alerts[%d]: url is required", i)
		}
	}
	return nil
}

// ApplyEnv applies the CHAINGATE_* overrides using getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	for _, mech := range model.Mechanisms {
		if truthy(getenv(disableEnv[mech])) {
			cfg.Enforcement.set(mech, false)
			cfg.Disabled = append(cfg.Disabled, mech)
		}
	}
	if v := strings.TrimSpace(getenv(EnvClassOverrides)); v != "" {
		if cfg.ClassOverrides != "" {
			cfg.ClassOverrides += ","
		}
		cfg.ClassOverrides += v
	}
	cfg.RedactOverride = getenv(EnvRedact)
}

// StaticRoots returns the configured roots. Invalid entries are skipped;
// Validate reports them.
func (c *Config) StaticRoots() []sandbox.Root {
	roots := make([]sandbox.Root, 0, len(c.Roots))
	for _, rc := range c.Roots {
		if r, err := rc.Root(); err == nil {
			roots = append(roots, r)
		}
	}
	return roots
}

// ClassPatterns returns the operator class rules including the
// string-encoded overrides.
func (c *Config) ClassPatterns() classfilter.Patterns {
	return c.Classes.Merge(classfilter.ParseOverrides(c.ClassOverrides))
}

func isJSON(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json" || ext == ".jsonc"
}

func truthy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "yes") || strings.EqualFold(s, "on") {
		return true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
