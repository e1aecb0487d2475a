package core

import (
	"errors"
	"fmt"
)

// Error kinds reported to clients alongside rejected operations.
const (
	KindValidation    = "validation"
	KindStateConflict = "state_conflict"
	KindNotFound      = "not_found"
	KindTransport     = "transport"
)

// ValidationError rejects a request with malformed or missing fields.
// Nothing is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateConflictError rejects an operation that is illegal in the current
// state, such as answering a call with no pending offer. Nothing is mutated.
type StateConflictError struct {
	Op     string
	Detail string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

// ResourceNotFoundError rejects an operation referencing an unknown or
// already-ended session.
type ResourceNotFoundError struct {
	Resource string
	ID       string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// TransportError reports a failed delivery to a participant. It is never
// fatal: the core logs it and moves on, leaving absence detection to
// presence tracking rather than per-message acknowledgment.
type TransportError struct {
	ParticipantID string
	Event         string
	Err           error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Event, e.ParticipantID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrKind maps an error to its client-facing kind. Unrecognized errors map
// to the empty string.
func ErrKind(err error) string {
	var (
		ve *ValidationError
		se *StateConflictError
		ne *ResourceNotFoundError
		te *TransportError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &se):
		return KindStateConflict
	case errors.As(err, &ne):
		return KindNotFound
	case errors.As(err, &te):
		return KindTransport
	}
	return ""
}
