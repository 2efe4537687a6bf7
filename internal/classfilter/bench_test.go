package classfilter

import (
	"fmt"
	"testing"
)

func BenchmarkEvaluate_Default(b *testing.B) {
	f := NewDefault()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Evaluate("build.ArtifactManifest")
	}
}

func BenchmarkEvaluate_Generic(b *testing.B) {
	f := NewDefault()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Evaluate("map[string][]coll.Pair[build.A,build.B]")
	}
}

func BenchmarkEvaluate_LargeOperatorList(b *testing.B) {
	var p Patterns
	for i := 0; i < 1000; i++ {
		p.Deny = append(p.Deny, fmt.Sprintf("vendor%d.", i))
	}
	f := New(p)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Evaluate("build.ArtifactManifest")
	}
}
