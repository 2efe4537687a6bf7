package wire

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Built-in container names. Their elements are Any envelopes.
const (
	ListType = "list"
	MapType  = "map"
)

var (
	listGoType  = reflect.TypeOf([]Any(nil))
	mapGoType   = reflect.TypeOf(map[string]Any(nil))
	stringType  = reflect.TypeOf("")
	builtinByGo = map[reflect.Type]string{
		stringType:                  "string",
		reflect.TypeOf(false):       "bool",
		reflect.TypeOf(int(0)):      "int",
		reflect.TypeOf(int64(0)):    "int64",
		reflect.TypeOf(float64(0)):  "float64",
		reflect.TypeOf([]byte(nil)): "bytes",
		listGoType:                  ListType,
		mapGoType:                   MapType,
	}
)

// Registry maps class names to Go types. Types are registered at
// startup, before the channel accepts traffic.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewRegistry creates a Registry holding only the built-in types.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	for t, name := range builtinByGo {
		r.byName[name] = t
		r.byType[t] = name
	}
	return r
}

var defaultRegistry = NewRegistry()

// Register records prototype's type under name in the default
// registry. It panics on conflicting registrations, like gob.Register.
func Register(name string, prototype any) {
	if err := defaultRegistry.Register(name, prototype); err != nil {
		panic(err)
	}
}

// Register records prototype's type under name.
func (r *Registry) Register(name string, prototype any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("wire: empty class name")
	}
	if prototype == nil {
		return fmt.Errorf("wire: nil prototype for %s", name)
	}
	t := reflect.TypeOf(prototype)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("wire: class %s already registered for %s", name, existing)
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("wire: type %s already registered as %s", t, existing)
	}
	r.byName[name] = t
	r.byType[t] = name
	return nil
}

// NameOf returns the type expression for v. Pointers are dropped;
// slices and string-keyed maps of registered types are expressed as
// []name and map[string]name.
func (r *Registry) NameOf(v any) (string, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return "", fmt.Errorf("wire: cannot name nil value")
	}
	return r.nameOfType(t)
}

func (r *Registry) nameOfType(t reflect.Type) (string, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	name, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		elem, err := r.nameOfType(t.Elem())
		if err != nil {
			return "", err
		}
		return "[]" + elem, nil
	case reflect.Map:
		if t.Key() != stringType {
			return "", fmt.Errorf("wire: map key type %s not supported", t.Key())
		}
		elem, err := r.nameOfType(t.Elem())
		if err != nil {
			return "", err
		}
		return "map[string]" + elem, nil
	}
	return "", fmt.Errorf("wire: type %s is not registered", t)
}

// TypeOf resolves a type expression to a Go type.
func (r *Registry) TypeOf(expr string) (reflect.Type, error) {
	r.mu.RLock()
	t, ok := r.byName[expr]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	switch {
	case strings.HasPrefix(expr, "[]"):
		elem, err := r.TypeOf(expr[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case strings.HasPrefix(expr, "map[string]"):
		elem, err := r.TypeOf(expr[len("map[string]"):])
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(stringType, elem), nil
	}
	return nil, &UnknownClassError{Class: expr}
}

// Names returns every registered class name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// UnknownClassError is returned when an admitted class has no registered type.
type UnknownClassError struct {
	Class string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("wire: class %s is not registered", e.Class)
}
