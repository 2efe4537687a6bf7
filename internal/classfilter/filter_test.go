package classfilter

import (
	"testing"
)

func TestBuiltinDenyAlwaysWins(t *testing.T) {
	f := New(Patterns{
		Deny:  []string{"!rmi.server.UnicastRemoteObject", "!java.rmi."},
		Allow: []string{"rmi.server.UnicastRemoteObject", "rmi.", "script.Bindings"},
	})

	for _, class := range []string{
		"rmi.server.UnicastRemoteObject",
		"java.rmi.server.RemoteObject",
		"script.Bindings",
		"reflect.Proxy",
		"java.rmi.activation.ActivationID",
	} {
		r := f.Evaluate(class)
		if r.Admitted {
			t.Errorf("expected built-in deny for %s despite operator entries", class)
		}
		if r.Layer != LayerBuiltin {
			t.Errorf("%s: expected builtin layer, got %s", class, r.Layer)
		}
	}
}

func TestOrdinaryClassAdmittedByDefault(t *testing.T) {
	f := NewDefault()
	if !f.IsAdmitted("build.ArtifactManifest") {
		t.Error("expected ordinary class to be admitted")
	}
	r := f.Evaluate("build.ArtifactManifest")
	if r.Layer != LayerDefault {
		t.Errorf("expected default layer, got %s", r.Layer)
	}
}

func TestDefaultDangerousFamilyDenied(t *testing.T) {
	f := NewDefault()
	if f.IsAdmitted("os/exec.Cmd") {
		t.Error("expected os/exec.Cmd to be denied by default policy")
	}
	if f.IsAdmitted("org.apache.commons.collections.functors.InvokerTransformer") {
		t.Error("expected functors family to be denied by default policy")
	}
	if r := f.Evaluate("reflect.Value"); r.Admitted || r.Layer != LayerDefault {
		t.Errorf("expected reflect family denied by default policy, got %+v", r)
	}
	if !New(Patterns{Allow: []string{"reflect.StructTag"}}).IsAdmitted("reflect.StructTag") {
		t.Error("operator allow must admit a default-denied reflect class")
	}
}

func TestAllowOverridesDefaultPolicy(t *testing.T) {
	f := New(Patterns{Allow: []string{"plugin.Manifest"}})
	if !f.IsAdmitted("plugin.Manifest") {
		t.Error("expected operator allow to admit a default-denied class")
	}
	if f.IsAdmitted("plugin.Loader") {
		t.Error("exact allow must not admit siblings")
	}
}

func TestOperatorDenyBeatsAllow(t *testing.T) {
	f := New(Patterns{
		Deny:  []string{"build.internal."},
		Allow: []string{"build.internal.Token"},
	})
	if f.IsAdmitted("build.internal.Token") {
		t.Error("operator deny must take precedence over allow entries")
	}
}

func TestNegationReadmitsInsideDeniedPrefix(t *testing.T) {
	f := New(Patterns{
		Deny: []string{"vendor.", "!vendor.safe.Result"},
	})
	if f.IsAdmitted("vendor.Gadget") {
		t.Error("expected vendor.Gadget denied by prefix")
	}
	r := f.Evaluate("vendor.safe.Result")
	if !r.Admitted {
		t.Fatalf("expected negation to re-admit, got %s", r.Reason)
	}
	if r.Layer != LayerOperator {
		t.Errorf("expected operator layer, got %s", r.Layer)
	}
}

func TestNegationSkipsDefaultPolicy(t *testing.T) {
	f := New(Patterns{Deny: []string{"!exec.SafeResult"}})
	if !f.IsAdmitted("exec.SafeResult") {
		t.Error("expected negation to admit inside a default-dangerous family")
	}
}

func TestSpecificityTieDenyWins(t *testing.T) {
	f := New(Patterns{Deny: []string{"!vendor.X", "vendor.X"}})
	if f.IsAdmitted("vendor.X") {
		t.Error("expected deny to win a specificity tie")
	}
}

func TestLongerPrefixWins(t *testing.T) {
	f := New(Patterns{Deny: []string{"!vendor.", "vendor.bad."}})
	if f.IsAdmitted("vendor.bad.Thing") {
		t.Error("expected longer deny prefix to win")
	}
	if !f.IsAdmitted("vendor.good.Thing") {
		t.Error("expected shorter negation to admit elsewhere")
	}
}

func TestStarPrefixSyntax(t *testing.T) {
	f := New(Patterns{Deny: []string{"vendor.*"}})
	if f.IsAdmitted("vendor.Anything") {
		t.Error("expected vendor.* to deny by prefix")
	}
	if !f.IsAdmitted("vendorx.Anything") {
		t.Error("vendor.* must not match vendorx.")
	}
}

func TestGenericParameterDenied(t *testing.T) {
	f := NewDefault()
	for _, expr := range []string{
		"map[string]rmi.server.UnicastRemoteObject",
		"[]rmi.server.UnicastRemoteObject",
		"coll.List[build.Result,rmi.server.UnicastRemoteObject]",
		"*[4]java.lang.reflect.Proxy",
	} {
		r := f.Evaluate(expr)
		if r.Admitted {
			t.Errorf("expected %s to be denied", expr)
		}
		if r.Class != "rmi.server.UnicastRemoteObject" && r.Class != "java.lang.reflect.Proxy" {
			t.Errorf("%s: expected offending component, got %s", expr, r.Class)
		}
	}
	if !f.IsAdmitted("map[string][]build.Result") {
		t.Error("expected safe container to be admitted")
	}
}

func TestMalformedNameRejected(t *testing.T) {
	f := NewDefault()
	for _, expr := range []string{"", "coll.List[build.Result", "bad name", "a]b", "coll.List[x]y"} {
		r := f.Evaluate(expr)
		if r.Admitted {
			t.Errorf("expected malformed %q to be rejected", expr)
		}
	}
}

func TestIsAdmittedIdempotent(t *testing.T) {
	f := New(Patterns{Deny: []string{"vendor."}})
	first := f.Evaluate("vendor.Thing")
	for i := 0; i < 10; i++ {
		if got := f.Evaluate("vendor.Thing"); got != first {
			t.Fatalf("evaluation %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestWithAppendsPatterns(t *testing.T) {
	base := New(Patterns{Deny: []string{"vendor."}})
	extended := base.With(Patterns{Deny: []string{"!vendor.ok.Result"}})
	if base.IsAdmitted("vendor.ok.Result") {
		t.Error("With must not mutate the receiver")
	}
	if !extended.IsAdmitted("vendor.ok.Result") {
		t.Error("expected extended filter to re-admit")
	}
}

func TestParseOverrides(t *testing.T) {
	p := ParseOverrides("vendor., !vendor.ok.Result +plugin.Manifest\n+ ,")
	if len(p.Deny) != 2 || p.Deny[0] != "vendor." || p.Deny[1] != "!vendor.ok.Result" {
		t.Errorf("unexpected deny entries %v", p.Deny)
	}
	if len(p.Allow) != 1 || p.Allow[0] != "plugin.Manifest" {
		t.Errorf("unexpected allow entries %v", p.Allow)
	}
}

func TestToMap(t *testing.T) {
	f := New(Patterns{Deny: []string{"vendor."}, Allow: []string{"plugin.Manifest"}})
	m := f.ToMap()
	if b, ok := m["builtin"].([]string); !ok || len(b) == 0 {
		t.Error("expected builtin in ToMap output")
	}
	if d, ok := m["deny"].([]string); !ok || len(d) != 1 {
		t.Error("expected deny in ToMap output")
	}
}
