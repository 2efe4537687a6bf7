package wire

import (
	"fmt"
	"sort"
	"strings"
)

// Admitter is consulted once per distinct class name found in a
// received graph. A non-nil error rejects the whole graph and is
// returned from Decode unchanged.
type Admitter interface {
	AdmitClass(name string) error
}

// AdmitFunc adapts a function to Admitter.
type AdmitFunc func(name string) error

func (f AdmitFunc) AdmitClass(name string) error { return f(name) }

// MalformedError is returned when a graph cannot be walked safely.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "wire: malformed object graph: " + e.Reason
}

// Marshal encodes v as a class-tagged object graph.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(Any{Value: v})
}

// Classes returns the distinct class names referenced by an encoded
// graph, in deterministic traversal order. Nothing is constructed.
func Classes(data []byte) ([]string, error) {
	var tree any
	if err := decMode.Unmarshal(data, &tree); err != nil {
		return nil, &MalformedError{Reason: err.Error()}
	}

	var classes []string
	seen := make(map[string]bool)
	if err := walk(tree, func(name string) {
		if !seen[name] {
			seen[name] = true
			classes = append(classes, name)
		}
	}); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, &MalformedError{Reason: "top-level value is not a class envelope"}
	}
	return classes, nil
}

// Decode reconstructs a graph produced by Marshal. Every class in the
// graph is admitted first. If any class is rejected, or is not
// registered, no value in the graph is constructed.
func Decode(data []byte, admit Admitter) (any, error) {
	classes, err := Classes(data)
	if err != nil {
		return nil, err
	}

	for _, name := range classes {
		if err := admit.AdmitClass(name); err != nil {
			return nil, err
		}
	}
	for _, name := range classes {
		if _, err := defaultRegistry.TypeOf(name); err != nil {
			return nil, err
		}
	}

	var root Any
	if err := decMode.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("wire: reconstruct graph: %w", err)
	}
	return root.Value, nil
}

func walk(v any, visit func(string)) error {
	switch node := v.(type) {
	case map[string]any:
		if raw, ok := node[typeKey]; ok {
			name, ok := raw.(string)
			if !ok || name == "" {
				return &MalformedError{Reason: fmt.Sprintf("%s must be a non-empty string", typeKey)}
			}
			visit(name)
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			if reservedVariant(k) {
				return &MalformedError{Reason: fmt.Sprintf("key %q imitates a reserved envelope key", k)}
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := walk(node[k], visit); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range node {
			if err := walk(child, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// reservedVariant reports whether k differs from an envelope key only
// by case. Such keys are never a class tag to the admission walk.
func reservedVariant(k string) bool {
	return (k != typeKey && strings.EqualFold(k, typeKey)) ||
		(k != valueKey && strings.EqualFold(k, valueKey))
}
