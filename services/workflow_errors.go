package services

import (
	"errors"
	"fmt"

	"pathbank/models"
)

// ErrQuestionNotFound is returned when a workflow action references an
// unknown question id.
var ErrQuestionNotFound = errors.New("question not found")

// ErrStatusConflict is returned by the store when a conditional status update
// matched no row, meaning another request changed the question first.
var ErrStatusConflict = errors.New("question status changed concurrently")

// ForbiddenError means the actor's role or ownership does not permit the
// action. It is distinct from IllegalTransitionError so callers can tell
// "wrong actor" apart from "wrong state".
type ForbiddenError struct {
	Action WorkflowAction
	Role   models.Role
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %s is not allowed to perform %s on this question", e.Role, e.Action)
}

// IllegalTransitionError means the action is not valid from the question's
// current status, including transitions lost to a concurrent request.
type IllegalTransitionError struct {
	Status models.QuestionStatus
	Action WorkflowAction
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a question in status %s", e.Action, e.Status)
}

// ValidationError means the request payload is missing or malformed, e.g. a
// rejection without feedback.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a store failure. The engine never retries; callers
// may resubmit an equivalent request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
