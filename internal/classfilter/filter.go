package classfilter

import (
	"fmt"
	"strings"
)

// Layer names the precedence layer that produced a result.
type Layer string

const (
	LayerBuiltin  Layer = "builtin"
	LayerOperator Layer = "operator"
	LayerAllow    Layer = "allow"
	LayerDefault  Layer = "default"
	LayerInvalid  Layer = "invalid"
)

// Patterns holds the raw operator/extension pattern strings.
// Deny entries may carry a leading "!" to re-admit a class inside an
// otherwise denied prefix.
type Patterns struct {
	Deny  []string `yaml:"deny" json:"deny"`
	Allow []string `yaml:"allow" json:"allow"`
}

// Merge returns the concatenation of p and other.
func (p Patterns) Merge(other Patterns) Patterns {
	return Patterns{
		Deny:  append(append([]string{}, p.Deny...), other.Deny...),
		Allow: append(append([]string{}, p.Allow...), other.Allow...),
	}
}

// Result is the outcome of evaluating one type expression.
type Result struct {
	Admitted bool   `json:"admitted"`
	Class    string `json:"class"`
	Layer    Layer  `json:"layer"`
	Pattern  string `json:"pattern,omitempty"`
	Reason   string `json:"reason"`
}

// rule is one compiled pattern.
type rule struct {
	raw     string
	body    string
	prefix  bool
	negated bool
}

func compile(raw string) (rule, bool) {
	r := rule{raw: strings.TrimSpace(raw)}
	body := r.raw
	if strings.HasPrefix(body, "!") {
		r.negated = true
		body = strings.TrimSpace(body[1:])
	}
	switch {
	case strings.HasSuffix(body, ".*"):
		r.prefix = true
		body = strings.TrimSuffix(body, "*")
	case strings.HasSuffix(body, "*"):
		r.prefix = true
		body = strings.TrimSuffix(body, "*")
	case strings.HasSuffix(body, "."), strings.HasSuffix(body, "/"):
		r.prefix = true
	}
	if body == "" {
		return rule{}, false
	}
	r.body = body
	return r, true
}

func (r rule) matches(class string) bool {
	if r.prefix {
		return strings.HasPrefix(class, r.body)
	}
	return class == r.body
}

// specificity orders matches: exact beats prefix, longer beats shorter.
func (r rule) specificity() int {
	n := len(r.body) * 2
	if !r.prefix {
		n++
	}
	return n
}

func compileAll(raw []string) []rule {
	out := make([]rule, 0, len(raw))
	for _, s := range raw {
		if r, ok := compile(s); ok {
			out = append(out, r)
		}
	}
	return out
}

// Filter holds compiled rules. A Filter is immutable after New and safe
// for concurrent use.
type Filter struct {
	builtin   []rule
	operator  []rule
	allow     []rule
	dangerous []rule
	raw       Patterns
}

// New compiles a Filter from operator/extension patterns. The built-in
// deny set and default policy are always included.
func New(p Patterns) *Filter {
	builtin := compileAll(BuiltinDeny)
	// Negation has no meaning in the built-in layer.
	for i := range builtin {
		builtin[i].negated = false
	}
	return &Filter{
		builtin:   builtin,
		operator:  compileAll(p.Deny),
		allow:     compileAll(p.Allow),
		dangerous: compileAll(DefaultDangerous),
		raw:       p,
	}
}

// NewDefault creates a Filter with only the built-in rules.
func NewDefault() *Filter {
	return New(Patterns{})
}

// With returns a new Filter with extra patterns appended.
func (f *Filter) With(extra Patterns) *Filter {
	return New(f.raw.Merge(extra))
}

// IsAdmitted reports whether the type expression may be reconstructed.
func (f *Filter) IsAdmitted(expr string) bool {
	return f.Evaluate(expr).Admitted
}

// Evaluate checks every class referenced by expr. The first rejected
// component rejects the whole expression.
func (f *Filter) Evaluate(expr string) Result {
	classes, err := Components(expr)
	if err != nil {
		return Result{
			Class:  expr,
			Layer:  LayerInvalid,
			Reason: fmt.Sprintf("malformed class name: %v", err),
		}
	}

	var last Result
	for _, c := range classes {
		r := f.evaluateClass(c)
		if !r.Admitted {
			if c != expr {
				r.Reason = fmt.Sprintf("%s (component of %s)", r.Reason, expr)
			}
			return r
		}
		last = r
	}
	last.Class = expr
	return last
}

// evaluateClass applies the precedence order to one class name:
// built-in deny, operator/extension deny and negation, allow entries,
// default policy.
func (f *Filter) evaluateClass(class string) Result {
	for _, r := range f.builtin {
		if r.matches(class) {
			return Result{
				Class:   class,
				Layer:   LayerBuiltin,
				Pattern: r.raw,
				Reason:  fmt.Sprintf("class %s is in the built-in deny set (%s)", class, r.raw),
			}
		}
	}

	if best, ok := mostSpecific(f.operator, class); ok {
		if best.negated {
			return Result{
				Admitted: true,
				Class:    class,
				Layer:    LayerOperator,
				Pattern:  best.raw,
				Reason:   fmt.Sprintf("class %s re-admitted by %s", class, best.raw),
			}
		}
		return Result{
			Class:   class,
			Layer:   LayerOperator,
			Pattern: best.raw,
			Reason:  fmt.Sprintf("class %s denied by operator rule %s", class, best.raw),
		}
	}

	for _, r := range f.allow {
		if r.matches(class) {
			return Result{
				Admitted: true,
				Class:    class,
				Layer:    LayerAllow,
				Pattern:  r.raw,
				Reason:   fmt.Sprintf("class %s allowed by %s", class, r.raw),
			}
		}
	}

	for _, r := range f.dangerous {
		if r.matches(class) {
			return Result{
				Class:   class,
				Layer:   LayerDefault,
				Pattern: r.raw,
				Reason:  fmt.Sprintf("class %s belongs to a dangerous family (%s)", class, r.raw),
			}
		}
	}

	return Result{
		Admitted: true,
		Class:    class,
		Layer:    LayerDefault,
		Reason:   "default policy",
	}
}

// mostSpecific picks the best-matching rule. On equal specificity a
// deny beats a negation.
func mostSpecific(rules []rule, class string) (rule, bool) {
	var best rule
	found := false
	for _, r := range rules {
		if !r.matches(class) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		switch s, bs := r.specificity(), best.specificity(); {
		case s > bs:
			best = r
		case s == bs && !r.negated && best.negated:
			best = r
		}
	}
	return best, found
}

// ToMap returns the operator patterns for serialization.
func (f *Filter) ToMap() map[string]any {
	return map[string]any{
		"builtin": BuiltinDeny,
		"deny":    f.raw.Deny,
		"allow":   f.raw.Allow,
	}
}

// ParseOverrides splits a string-encoded override list. Entries are
// separated by commas or whitespace. Entries prefixed with "+" go to
// the allow list, everything else (including "!" negations) to the
// deny list.
func ParseOverrides(s string) Patterns {
	var p Patterns
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	for _, f := range fields {
		if strings.HasPrefix(f, "+") {
			if v := strings.TrimSpace(f[1:]); v != "" {
				p.Allow = append(p.Allow, v)
			}
			continue
		}
		p.Deny = append(p.Deny, f)
	}
	return p
}
