package types

import (
	"errors"
	"sort"
	"strings"
)

// Engine errors. Closure and backfill return these wrapped with context;
// callers test with errors.Is.
var (
	// ErrConfigurationMissing means the owner has no usable plan or no
	// editable statistics.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrValidation covers bad plan parameters and cycles that cannot be closed.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateSnapshot is informational: the cycle is already closed and
	// nothing was written.
	ErrDuplicateSnapshot = errors.New("snapshot already exists")
	// ErrComputation marks a failed aggregate field. It is logged and the
	// field is zeroed; it never reaches the caller of a closure.
	ErrComputation = errors.New("aggregate computation failed")
)

// Store errors.
var (
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidID       = errors.New("invalid entity ID")
	ErrInvalidOwner    = errors.New("owner must not be empty")
	ErrDuplicateTitle  = errors.New("plan title already used by owner")
	ErrPlanInUse       = errors.New("plan has snapshots")
	ErrInvalidCategory = errors.New("invalid activity category")
	ErrInvalidBookCat  = errors.New("invalid book category")
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// ValidationError lists the fields that failed validation. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string // field name -> reason
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is reports ErrValidation as the sentinel for this error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
