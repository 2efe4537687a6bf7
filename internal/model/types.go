package model

import "strings"

// Side identifies one end of the controller/agent channel.
type Side string

const (
	SideController Side = "controller"
	SideAgent      Side = "agent"
)

// Trusted returns true for the controller side.
func (s Side) Trusted() bool {
	return s == SideController
}

// Peer returns the opposite side.
func (s Side) Peer() Side {
	if s == SideController {
		return SideAgent
	}
	return SideController
}

// ParseSide maps a string to a Side. Fail-closed: unknown → agent.
func ParseSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), string(SideController)) {
		return SideController
	}
	return SideAgent
}

// Direction is the way a work item is about to travel.
type Direction string

const (
	ControllerToAgent Direction = "controller_to_agent"
	AgentToController Direction = "agent_to_controller"
)

// DirectionBetween returns the direction of travel from one side to the other.
func DirectionBetween(from, to Side) Direction {
	if from == SideController && to == SideAgent {
		return ControllerToAgent
	}
	return AgentToController
}

// Destination returns the side that executes an item traveling in d.
func (d Direction) Destination() Side {
	if d == ControllerToAgent {
		return SideAgent
	}
	return SideController
}

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == ControllerToAgent || d == AgentToController
}

// Role is a process-identity capability a work item claims to satisfy.
type Role string

const (
	// RoleController marks items allowed to execute on the controller.
	RoleController Role = "controller"
	// RoleAgent marks items allowed to execute on an agent.
	RoleAgent Role = "agent"
	// RoleGranted marks items allowed to execute on the controller only
	// when the operator grants the item type explicitly.
	RoleGranted Role = "granted"
)

// RequiredRole returns the role an item must declare to travel in d.
func RequiredRole(d Direction) Role {
	if d == ControllerToAgent {
		return RoleAgent
	}
	return RoleController
}

// Mechanism names one of the three enforcement mechanisms.
type Mechanism string

const (
	MechanismRole  Mechanism = "role"
	MechanismClass Mechanism = "class"
	MechanismPath  Mechanism = "path"
)

// Mechanisms lists all mechanisms in reporting order.
var Mechanisms = []Mechanism{MechanismRole, MechanismClass, MechanismPath}

// ParseMechanism maps a string to a Mechanism.
func ParseMechanism(s string) (Mechanism, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "role", "roles":
		return MechanismRole, true
	case "class", "classes":
		return MechanismClass, true
	case "path", "paths":
		return MechanismPath, true
	default:
		return "", false
	}
}
