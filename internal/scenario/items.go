package scenario

import (
	"sort"

	"github.com/ppiankov/chaingate/internal/roles"
)

type undeclared struct{}

type legacy struct{}

func (legacy) Call() (any, error) { return nil, nil }

// Items are the work item declarations a role case can name.
var Items = map[string]any{
	"to_agent":              roles.ToAgent{},
	"to_controller":         roles.ToController{},
	"either":                roles.Either{},
	"granted_to_controller": roles.GrantedToController{},
	"undeclared":            undeclared{},
	"legacy":                legacy{},
}

// ItemNames returns the names in Items, sorted.
func ItemNames() []string {
	names := make([]string, 0, len(Items))
	for n := range Items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
