package model

// Scope selects which documents a list operation returns.
type Scope string

const (
	// ScopeUser returns documents owned by the current user.
	ScopeUser Scope = "user"
	// ScopeDepartment returns documents owned by the current department.
	ScopeDepartment Scope = "department"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeDepartment
}
