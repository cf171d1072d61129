package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a rapport error code.
type ErrorCode string

const (
	ErrInvalidParameter  ErrorCode = "INVALID_PARAMETER"   // 400
	ErrUnknownDecayType  ErrorCode = "UNKNOWN_DECAY_TYPE"  // 400
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"           // 404
	ErrInvalidRuleConfig ErrorCode = "INVALID_RULE_CONFIG" // 422
	ErrInternal          ErrorCode = "INTERNAL"            // 500
)

// Error is a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidParameter creates a 400 error for an out-of-range numeric parameter.
func NewInvalidParameter(name string, value float64, constraint string) *Error {
	return &Error{
		Code:    ErrInvalidParameter,
		Status:  400,
		Message: fmt.Sprintf("%s must be %s, got %v", name, constraint, value),
		Details: map[string]any{"parameter": name, "value": value},
	}
}

// NewUnknownDecayType creates a 400 error for an unsupported decay curve.
func NewUnknownDecayType(decayType string) *Error {
	return &Error{
		Code:    ErrUnknownDecayType,
		Status:  400,
		Message: fmt.Sprintf("unknown decay type %q", decayType),
		Details: map[string]any{"type": decayType},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity.
func NewNotFound(kind, id string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewInvalidRuleConfig creates a 422 error for a rule whose configuration
// does not fit its type.
func NewInvalidRuleConfig(ruleType, msg string) *Error {
	return &Error{
		Code:    ErrInvalidRuleConfig,
		Status:  422,
		Message: fmt.Sprintf("%s rule: %s", ruleType, msg),
		Details: map[string]any{"type": ruleType},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if err, or anything it wraps, is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 500 for plain errors.
func StatusOf(err error) int {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Status
	}
	return 500
}
