package roles

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ppiankov/chaingate/internal/enforce"
	"github.com/ppiankov/chaingate/internal/model"
)

// RoleSensitive is implemented by every work item that may cross the
// boundary. CheckRoles must call c.Check with each role the item
// claims to satisfy for the direction being checked.
type RoleSensitive interface {
	CheckRoles(c Checker) error
}

// Legacy is the shape of work items that predate RoleSensitive: they
// can be invoked but declare nothing about where they may run.
type Legacy interface {
	Call() (any, error)
}

// Checker receives role claims from a work item.
type Checker interface {
	// Check returns nil if any of roles satisfies the current direction.
	Check(roles ...model.Role) error
}

// Grants is the operator-maintained set of work item type names that
// may execute on the controller under model.RoleGranted.
type Grants map[string]bool

// NewGrants builds a Grants set from type names.
func NewGrants(names ...string) Grants {
	g := make(Grants, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			g[n] = true
		}
	}
	return g
}

// TypeName returns the fully qualified type name of v (pkgpath.Type).
// Pointer indirection is dropped.
func TypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// checker records every Check call made by one CheckRoles invocation.
// It is never shared across invocations.
type checker struct {
	required model.Role
	dir      model.Direction
	typeName string
	grants   Grants

	checked  bool
	mismatch []model.Role
}

func (c *checker) Check(roles ...model.Role) error {
	c.checked = true
	for _, r := range roles {
		if r == c.required {
			return nil
		}
		if r == model.RoleGranted && c.required == model.RoleController && c.grants[c.typeName] {
			return nil
		}
	}
	c.mismatch = append(c.mismatch, roles...)
	return &enforce.SecurityError{
		Kind:       model.KindUnauthorizedDirection,
		Mechanism:  model.MechanismRole,
		Identifier: c.typeName,
		Reason:     fmt.Sprintf("%s is not permitted to travel %s (requires role %s, declared %s)", c.typeName, c.dir, c.required, formatRoles(roles)),
		Redacted:   fmt.Sprintf("work item not permitted to travel %s", c.dir),
	}
}

// Authorize decides whether item may travel in direction dir.
//
// Deny is the default: an item passes only if its CheckRoles callback
// made at least one Check call, every Check call matched the required
// role, and the callback itself returned nil.
func Authorize(item any, dir model.Direction, grants Grants) (d model.Decision) {
	typeName := TypeName(item)

	if !dir.Valid() {
		return denyDirection(typeName, dir, fmt.Sprintf("unknown direction %q", dir))
	}
	if item == nil {
		return denyDirection(typeName, dir, "nil work item")
	}

	rs, ok := item.(RoleSensitive)
	if !ok {
		if _, legacy := item.(Legacy); legacy || invocable(item) {
			return model.Deny(model.KindLegacyWorkItemRejected, typeName,
				fmt.Sprintf("legacy work item %s does not declare permitted directions", typeName),
				fmt.Sprintf("legacy work item %s rejected", typeName))
		}
		return denyDirection(typeName, dir, fmt.Sprintf("%s is not a role-sensitive work item", typeName))
	}

	c := &checker{
		required: model.RequiredRole(dir),
		dir:      dir,
		typeName: typeName,
		grants:   grants,
	}

	defer func() {
		if r := recover(); r != nil {
			d = denyDirection(typeName, dir, fmt.Sprintf("role check of %s panicked: %v", typeName, r))
		}
	}()

	err := rs.CheckRoles(c)

	switch {
	case len(c.mismatch) > 0:
		return denyDirection(typeName, dir, fmt.Sprintf("%s declared %s, %s requires %s",
			typeName, formatRoles(c.mismatch), dir, c.required))
	case err != nil:
		return denyDirection(typeName, dir, fmt.Sprintf("role check of %s failed: %v", typeName, err))
	case !c.checked:
		return denyDirection(typeName, dir, fmt.Sprintf("%s performed no role check", typeName))
	}

	return model.Allow(typeName)
}

// invocable reports whether v has a Call method of any signature. Such
// values can be executed but carry no direction declaration.
func invocable(v any) bool {
	_, ok := reflect.TypeOf(v).MethodByName("Call")
	return ok
}

func denyDirection(typeName string, dir model.Direction, reason string) model.Decision {
	return model.Deny(model.KindUnauthorizedDirection, typeName, reason,
		fmt.Sprintf("work item not permitted to travel %s", dir))
}

func formatRoles(roles []model.Role) string {
	if len(roles) == 0 {
		return "no roles"
	}
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
