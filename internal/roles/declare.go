package roles

import "github.com/ppiankov/chaingate/internal/model"

// Embeddable declarations for the common cases. A work item embeds one
// of these to inherit its CheckRoles method.

// ToAgent declares an item that only runs on agents (controller → agent).
type ToAgent struct{}

func (ToAgent) CheckRoles(c Checker) error { return c.Check(model.RoleAgent) }

// ToController declares an item that only runs on the controller (agent → controller).
type ToController struct{}

func (ToController) CheckRoles(c Checker) error { return c.Check(model.RoleController) }

// Either declares an item that may run on either side.
type Either struct{}

func (Either) CheckRoles(c Checker) error {
	return c.Check(model.RoleController, model.RoleAgent)
}

// GrantedToController declares an item that runs on agents, and on the
// controller only when the operator grants its type name.
type GrantedToController struct{}

func (GrantedToController) CheckRoles(c Checker) error {
	return c.Check(model.RoleAgent, model.RoleGranted)
}
