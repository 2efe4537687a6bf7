package model

import "strings"

// Operation is the kind of file operation requested across the boundary.
type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpCreate  Operation = "create"
	OpDelete  Operation = "delete"
	OpList    Operation = "list"
	OpStat    Operation = "stat"
	OpExtract Operation = "extract"
	OpMkdirs  Operation = "mkdirs"
	OpSymlink Operation = "symlink"
)

// AllOperations lists every operation kind.
var AllOperations = []Operation{
	OpRead, OpWrite, OpCreate, OpDelete, OpList, OpStat, OpExtract, OpMkdirs, OpSymlink,
}

// ReadOperations are the operations that never modify the filesystem.
var ReadOperations = []Operation{OpRead, OpList, OpStat}

// Mutates returns true if the operation changes the filesystem.
func (o Operation) Mutates() bool {
	switch o {
	case OpRead, OpList, OpStat:
		return false
	default:
		return true
	}
}

// ParseOperation maps a string to an Operation.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllOperations {
		if op == known {
			return op, true
		}
	}
	return "", false
}

// OperationSet is a set of permitted operations.
type OperationSet map[Operation]bool

// NewOperationSet builds a set from a list. "all" or "*" expands to every operation.
func NewOperationSet(ops ...Operation) OperationSet {
	set := make(OperationSet, len(ops))
	for _, op := range ops {
		if op == "all" || op == "*" {
			for _, known := range AllOperations {
				set[known] = true
			}
			continue
		}
		set[op] = true
	}
	return set
}

// Permits returns true if op is in the set.
func (s OperationSet) Permits(op Operation) bool {
	return s[op]
}
