package policydiff

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ppiankov/chaingate/internal/alert"
	"github.com/ppiankov/chaingate/internal/policy"
)

func TestIdenticalPoliciesNoChanges(t *testing.T) {
	r := Diff(policy.DefaultConfig(), policy.DefaultConfig())
	if r.HasChanges || r.Looser {
		t.Errorf("expected no changes, got %d changes + %d rule changes",
			len(r.Changes), len(r.RuleChanges))
	}
}

func TestEnforcementChange(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Enforcement.Paths = false

	r := Diff(a, b)
	if len(r.Changes) != 1 {
		t.Fatalf("expected 1 change, got %+v", r.Changes)
	}
	c := r.Changes[0]
	if c.Field != "enforcement.path" || c.Old != "true" || c.New != "false" || c.Comment != "looser" {
		t.Errorf("unexpected change %+v", c)
	}
	if !r.Looser {
		t.Error("disabling a mechanism is looser")
	}

	r = Diff(b, a)
	if r.Changes[0].Comment != "stricter" || r.Looser {
		t.Errorf("re-enabling should be stricter, got %+v", r.Changes[0])
	}
}

func TestClassRuleChanges(t *testing.T) {
	a := policy.DefaultConfig()
	a.Classes.Deny = []string{"acme.legacy."}
	b := policy.DefaultConfig()
	b.Classes.Deny = []string{"acme.internal."}
	b.ClassOverrides = "+acme.internal.Safe"

	r := Diff(a, b)
	want := map[string]string{
		"added classes.deny acme.internal.":      "stricter",
		"removed classes.deny acme.legacy.":      "looser",
		"added classes.allow acme.internal.Safe": "looser",
	}
	got := make(map[string]string)
	for _, rc := range r.RuleChanges {
		got[rc.Type+" "+rc.Section+" "+rc.Rule] = rc.Comment
	}
	for k, comment := range want {
		if got[k] != comment {
			t.Errorf("%s: got comment %q, want %q (all: %v)", k, got[k], comment, got)
		}
	}
}

func TestGrantAndAlertChanges(t *testing.T) {
	a := policy.DefaultConfig()
	a.Alerts = []alert.Config{{URL: "https://hooks.example/a"}}
	b := policy.DefaultConfig()
	b.Grants = []string{"jenkins.StatsCollector"}

	r := Diff(a, b)
	var grant, alerts bool
	for _, rc := range r.RuleChanges {
		switch {
		case rc.Section == "grants" && rc.Type == "added" && rc.Comment == "looser":
			grant = true
		case rc.Section == "alerts" && rc.Type == "removed":
			alerts = true
		}
	}
	if !grant || !alerts {
		t.Errorf("missing grant or alert change: %+v", r.RuleChanges)
	}
}

func TestRootChanges(t *testing.T) {
	a := policy.DefaultConfig()
	a.Roots = []policy.RootConfig{
		{Path: "/srv/cache", Ops: []string{"read"}},
		{Path: "/srv/old", Ops: []string{"read"}},
	}
	b := policy.DefaultConfig()
	b.Roots = []policy.RootConfig{
		{Path: "/srv/cache", Ops: []string{"read", "write"}},
		{Path: "/srv/new", Ops: []string{"list"}},
	}

	r := Diff(a, b)
	types := make(map[string]string)
	for _, rc := range r.RuleChanges {
		if rc.Section == "roots" {
			types[rc.Type] = rc.Comment
		}
	}
	if types["changed"] != "looser" || types["added"] != "looser" || types["removed"] != "stricter" {
		t.Errorf("unexpected root changes %+v", r.RuleChanges)
	}
}

func TestNarrowedRootIsStricter(t *testing.T) {
	a := policy.DefaultConfig()
	a.Roots = []policy.RootConfig{{Path: "/srv/cache", Ops: []string{"all"}}}
	b := policy.DefaultConfig()
	b.Roots = []policy.RootConfig{{Path: "/srv/cache", Ops: []string{"read"}}}

	r := Diff(a, b)
	if len(r.RuleChanges) != 1 || r.RuleChanges[0].Comment != "stricter" || r.Looser {
		t.Errorf("expected one stricter change, got %+v", r.RuleChanges)
	}
}

func TestFormatText(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Enforcement.Classes = false
	b.Classes.Allow = []string{"acme.Result"}

	r := Diff(a, b)
	r.OldPath, r.NewPath = "old.yaml", "new.yaml"
	out := FormatText(r)
	for _, want := range []string{"old.yaml → new.yaml", "enforcement.class:", "classes.allow:", "+ acme.Result", "WARNING"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = FormatText(Diff(a, a))
	if !strings.Contains(out, "No changes detected") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	b := policy.DefaultConfig()
	b.Redact.IncludeDetail = true
	out, err := FormatJSON(Diff(policy.DefaultConfig(), b))
	if err != nil {
		t.Fatal(err)
	}
	var r DiffResult
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatal(err)
	}
	if !r.HasChanges || !r.Looser || r.Changes[0].Field != "redact.include_detail" {
		t.Errorf("unexpected result %+v", r)
	}
}
