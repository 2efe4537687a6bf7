package classfilter

import (
	"reflect"
	"strings"
	"testing"
)

func TestComponents(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"build.Result", []string{"build.Result"}},
		{"[]build.Result", []string{"build.Result"}},
		{"*build.Result", []string{"build.Result"}},
		{"[8]build.Result", []string{"build.Result"}},
		{"map[string]build.Result", []string{"string", "build.Result"}},
		{"map[string][]map[string]build.Result", []string{"string", "build.Result"}},
		{"coll.Pair[build.A, build.B]", []string{"coll.Pair", "build.A", "build.B"}},
		{"coll.List[coll.List[build.A]]", []string{"coll.List", "build.A"}},
		{"github.com/acme/ci/build.Result", []string{"github.com/acme/ci/build.Result"}},
	}
	for _, tt := range tests {
		got, err := Components(tt.expr)
		if err != nil {
			t.Errorf("Components(%q): %v", tt.expr, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Components(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestComponentsDepthLimit(t *testing.T) {
	expr := strings.Repeat("[]", maxTypeDepth+2) + "build.Result"
	if _, err := Components(expr); err == nil {
		t.Error("expected depth limit error")
	}
}
