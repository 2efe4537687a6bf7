package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/redact"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

func writePolicy(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enforcement.Roles || !cfg.Enforcement.Classes || !cfg.Enforcement.Paths {
		t.Errorf("expected every mechanism enforced, got %+v", cfg.Enforcement)
	}
	if hash != Fingerprint(nil) {
		t.Errorf("expected fingerprint of empty input, got %s", hash)
	}
	if !strings.HasPrefix(hash, "blake3:") || len(hash) != len("blake3:")+64 {
		t.Errorf("unexpected fingerprint format %q", hash)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writePolicy(t, "policy.yaml", `
enforcement:
  paths: false
classes:
  deny: ["acme.internal."]
  allow: ["acme.api.Result"]
class_overrides: "!acme.internal.Safe"
grants: ["acme.jobs.Collect"]
roots:
  - path: /srv/cache
    ops: [read, list]
audit:
  path: /var/log/chaingate/audit.jsonl
`)
	cfg, hash, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enforcement.Paths || !cfg.Enforcement.Roles || !cfg.Enforcement.Classes {
		t.Errorf("unspecified switches must keep defaults, got %+v", cfg.Enforcement)
	}
	if len(cfg.Grants) != 1 || cfg.Audit.Path == "" {
		t.Errorf("unexpected config %+v", cfg)
	}
	p := cfg.ClassPatterns()
	if len(p.Deny) != 2 || p.Deny[1] != "!acme.internal.Safe" {
		t.Errorf("expected overrides merged into deny rules, got %v", p.Deny)
	}
	roots := cfg.StaticRoots()
	if len(roots) != 1 || roots[0].Kind != sandbox.RootStatic {
		t.Fatalf("unexpected roots %+v", roots)
	}
	if roots[0].Permits(model.OpWrite) || !roots[0].Permits(model.OpRead) {
		t.Error("root ops not applied")
	}

	data, _ := os.ReadFile(path)
	if hash != Fingerprint(data) {
		t.Error("fingerprint must cover raw bytes")
	}
}

func TestLoadConfigJSONC(t *testing.T) {
	path := writePolicy(t, "policy.jsonc", `{
  // comments are allowed
  "enforcement": {"roles": true, "classes": false, "paths": true},
  "grants": ["acme.jobs.Collect",],
  /* trailing commas too */
  "redact": {"include_detail": true}
}`)
	cfg, _, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enforcement.Classes {
		t.Error("expected classes disabled")
	}
	if !cfg.Redact.IncludeDetail || len(cfg.Grants) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad yaml", "p.yaml", "enforcement: [unclosed"},
		{"relative root", "p.yaml", "roots:\n  - path: cache\n"},
		{"unknown op", "p.yaml", "roots:\n  - path: /srv\n    ops: [chmod]\n"},
		{"bad pattern", "p.yaml", "redact:\n  extra_patterns:\n    - name: x\n      regex: \"(\"\n"},
		{"alert without url", "p.yaml", "alerts:\n  - format: slack\n"},
		{"bad json", "p.json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := LoadConfig(writePolicy(t, tt.file, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDisablePaths:   "1",
		EnvDisableRoles:   "no",
		EnvClassOverrides: "acme.,!acme.ok.T",
		EnvRedact:         "never",
	}
	cfg := DefaultConfig()
	cfg.ClassOverrides = "legacy."
	ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Enforcement.Paths {
		t.Error("expected paths disabled")
	}
	if !cfg.Enforcement.Roles {
		t.Error("'no' must not disable")
	}
	if len(cfg.Disabled) != 1 || cfg.Disabled[0] != model.MechanismPath {
		t.Errorf("unexpected disabled list %v", cfg.Disabled)
	}
	if cfg.ClassOverrides != "legacy.,acme.,!acme.ok.T" {
		t.Errorf("unexpected overrides %q", cfg.ClassOverrides)
	}
	if cfg.RedactOverride != "never" {
		t.Errorf("unexpected redact override %q", cfg.RedactOverride)
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv(EnvDisableClasses, "true")
	t.Setenv(EnvRedact, "never")
	cfg, _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enforcement.Classes {
		t.Error("expected env to disable classes")
	}
	snap, err := buildSnapshot(cfg, "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Redactor().Mode() != redact.ModeDetail {
		t.Error("expected CHAINGATE_REDACT=never to select detail mode")
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	cfg, err := ParseConfig([]byte(DefaultConfigYAML()), false)
	if err != nil {
		t.Fatalf("template must parse: %v", err)
	}
	if !cfg.Enforcement.Roles || !cfg.Enforcement.Classes || !cfg.Enforcement.Paths {
		t.Error("template must enforce everything")
	}
}
