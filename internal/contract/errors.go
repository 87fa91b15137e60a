package contract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaViolation matches every *ValidationError.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrEmptySelectorObject matches a *ValidationError holding at least one
	// selector object with no selector at all. It is also returned directly by
	// BuildSelectorObject.
	ErrEmptySelectorObject = errors.New("empty selector object")
)

// ViolationKind classifies a single contract violation.
type ViolationKind string

const (
	KindMissingField        ViolationKind = "missing_field"
	KindTypeMismatch        ViolationKind = "type_mismatch"
	KindOutOfRange          ViolationKind = "out_of_range"
	KindInvalidEnum         ViolationKind = "invalid_enum"
	KindInvalidFormat       ViolationKind = "invalid_format"
	KindEmptyValue          ViolationKind = "empty_value"
	KindEmptySelectorObject ViolationKind = "empty_selector_object"
)

// Violation is one problem found while validating a candidate report.
type Violation struct {
	Path     string        `json:"path"`
	Kind     ViolationKind `json:"kind"`
	Expected string        `json:"expected"`
	Message  string        `json:"message"`
}

func (v Violation) String() string {
	if v.Expected == "" {
		return fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return fmt.Sprintf("%s: %s (expected %s)", v.Path, v.Message, v.Expected)
}

// ValidationError carries every violation found in one candidate.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("schema violation: %d problem(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// Is lets errors.Is match the package sentinels.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrSchemaViolation:
		return true
	case ErrEmptySelectorObject:
		for _, v := range e.Violations {
			if v.Kind == KindEmptySelectorObject {
				return true
			}
		}
	}
	return false
}

// Paths lists the path of every violation, in discovery order.
func (e *ValidationError) Paths() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Path
	}
	return out
}

// DecodeError is returned by ValidateJSON when the bytes are not JSON at all.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode candidate report: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }
