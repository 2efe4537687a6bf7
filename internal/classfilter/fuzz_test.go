package classfilter

import "testing"

func FuzzEvaluate(f *testing.F) {
	filter := New(Patterns{Deny: []string{"vendor.", "!vendor.ok."}, Allow: []string{"plugin.Manifest"}})

	seeds := []string{
		"build.Result",
		"rmi.server.UnicastRemoteObject",
		"map[string]build.Result",
		"coll.List[build.A,coll.Map[string,rmi.X]]",
		"[][][]x",
		"map[",
		"]",
		"!vendor.ok.X",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, expr string) {
		// Must not panic on any input
		r := filter.Evaluate(expr)
		if r.Admitted && r.Layer == LayerBuiltin {
			t.Fatalf("builtin layer must never admit: %q", expr)
		}
	})
}
