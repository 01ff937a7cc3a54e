package flow

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown flow id.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("flow not found: %s", e.ID)
}

// NewNotFoundError creates a NotFoundError for the given id.
func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// DuplicateIDError reports a create collision.
type DuplicateIDError struct {
	ID string
}

// Error implements the error interface.
func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("flow already exists: %s", e.ID)
}

// NewDuplicateIDError creates a DuplicateIDError for the given id.
func NewDuplicateIDError(id string) *DuplicateIDError {
	return &DuplicateIDError{ID: id}
}

// IsDuplicateID reports whether err is a DuplicateIDError.
func IsDuplicateID(err error) bool {
	var e *DuplicateIDError
	return errors.As(err, &e)
}

// InvalidTransitionError reports an illegal lifecycle state change.
type InvalidTransitionError struct {
	ID   string
	From FlowState
	To   FlowState
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for flow %s: %s -> %s", e.ID, e.From, e.To)
}

// NewInvalidTransitionError creates an InvalidTransitionError.
func NewInvalidTransitionError(id string, from, to FlowState) *InvalidTransitionError {
	return &InvalidTransitionError{ID: id, From: from, To: to}
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// InvalidExpressionError reports a malformed filter expression, naming the
// offending token and its byte position in the source text.
type InvalidExpressionError struct {
	Expression string
	Position   int
	Token      string
	Reason     string
}

// Error implements the error interface.
func (e *InvalidExpressionError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("invalid filter expression at position %d near %q: %s", e.Position, e.Token, e.Reason)
	}
	return fmt.Sprintf("invalid filter expression at position %d: %s", e.Position, e.Reason)
}

// NewInvalidExpressionError creates an InvalidExpressionError.
func NewInvalidExpressionError(expr string, pos int, token, reason string) *InvalidExpressionError {
	return &InvalidExpressionError{Expression: expr, Position: pos, Token: token, Reason: reason}
}

// IsInvalidExpression reports whether err is an InvalidExpressionError.
func IsInvalidExpression(err error) bool {
	var e *InvalidExpressionError
	return errors.As(err, &e)
}

// InvalidPolicyError reports a cleanup policy with missing or conflicting
// selector fields.
type InvalidPolicyError struct {
	Policy string
	Reason string
}

// Error implements the error interface.
func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid cleanup policy %q: %s", e.Policy, e.Reason)
}

// NewInvalidPolicyError creates an InvalidPolicyError.
func NewInvalidPolicyError(policy, reason string) *InvalidPolicyError {
	return &InvalidPolicyError{Policy: policy, Reason: reason}
}

// IsInvalidPolicy reports whether err is an InvalidPolicyError.
func IsInvalidPolicy(err error) bool {
	var e *InvalidPolicyError
	return errors.As(err, &e)
}

// SerializationError reports an export encoding failure.
type SerializationError struct {
	Format string
	Cause  error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failed [format=%s]: %v", e.Format, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SerializationError) Unwrap() error { return e.Cause }

// NewSerializationError creates a SerializationError.
func NewSerializationError(format string, cause error) *SerializationError {
	return &SerializationError{Format: format, Cause: cause}
}

// IsSerializationFailure reports whether err is a SerializationError.
func IsSerializationFailure(err error) bool {
	var e *SerializationError
	return errors.As(err, &e)
}

// CapacityError reports that the store is at its ceiling and eviction could
// not make room (every resident flow is pinned by an in-progress stream).
type CapacityError struct {
	Max int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("flow store at capacity (%d flows) and no record is evictable", e.Max)
}

// NewCapacityError creates a CapacityError.
func NewCapacityError(max int) *CapacityError {
	return &CapacityError{Max: max}
}

// IsCapacityExceeded reports whether err is a CapacityError.
func IsCapacityExceeded(err error) bool {
	var e *CapacityError
	return errors.As(err, &e)
}
