package gdao

import (
	"fmt"
	"strings"
)

// =====================================
// Error Handling
// =====================================

// Error represents a GDAO-specific error. Table, Relation, and ID
// carry enough context to diagnose a failure without re-deriving it
// from a stack trace.
type Error struct {
	Type     ErrorType
	Message  string
	Table    string
	Relation string
	ID       interface{}
	Cause    error
}

// Error implements the error interface
func (e Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Table != "" {
		ctx = append(ctx, "table="+e.Table)
	}
	if e.Relation != "" {
		ctx = append(ctx, "relation="+e.Relation)
	}
	if e.ID != nil {
		ctx = append(ctx, fmt.Sprintf("id=%v", e.ID))
	}
	if len(ctx) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" (caused by: %v)", e.Cause))
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e Error) Is(target error) bool {
	if targetErr, ok := target.(Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// WithTable returns a copy of the error annotated with a table name
func (e Error) WithTable(table string) Error {
	e.Table = table
	return e
}

// WithRelation returns a copy of the error annotated with a relation name
func (e Error) WithRelation(relation string) Error {
	e.Relation = relation
	return e
}

// WithID returns a copy of the error annotated with the offending id
func (e Error) WithID(id interface{}) Error {
	e.ID = id
	return e
}

// NewError creates a new Error
func NewError(errorType ErrorType, message string) Error {
	return Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping a cause
func NewErrorWithCause(errorType ErrorType, message string, cause error) Error {
	return Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return IsErrorType(err, ErrorTypeConfiguration)
}

// IsMapping checks if an error is a mapping error
func IsMapping(err error) bool {
	return IsErrorType(err, ErrorTypeMapping)
}

// IsIllegalState checks if an error is an illegal-state error
func IsIllegalState(err error) bool {
	return IsErrorType(err, ErrorTypeIllegalState)
}

// IsDuplicate checks if an error is a "duplicate" error
func IsDuplicate(err error) bool {
	return IsErrorType(err, ErrorTypeDuplicate)
}

// IsUnsupported checks if an error is an "unsupported" error
func IsUnsupported(err error) bool {
	return IsErrorType(err, ErrorTypeUnsupported)
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	if gdaoErr, ok := err.(Error); ok {
		return gdaoErr.Type == errorType
	}
	return false
}
