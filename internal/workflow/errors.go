package workflow

import "errors"

// Expected, recoverable-by-caller error kinds. Every mutating operation
// either fully succeeds or fails with one of these, leaving all entities
// untouched; anything else is an internal storage fault.
var (
	// ErrTemplateNotFound is returned when a subtype has no matching routing
	// template, neither conditional nor fallback.
	ErrTemplateNotFound = errors.New("no routing template matches")

	// ErrInvalidState is returned when an activity-level precondition is
	// violated, e.g. submitting a non-draft or cancelling a touched chain.
	ErrInvalidState = errors.New("activity state does not permit this operation")

	// ErrInvalidStepState is returned when a step-level precondition is
	// violated: deciding a non-pending or non-active step.
	ErrInvalidStepState = errors.New("step state does not permit this operation")

	// ErrInvalidAssignee is returned when the actor is not the step's
	// resolved assignee.
	ErrInvalidAssignee = errors.New("actor is not the step assignee")

	// ErrNotFound is returned on entity lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrFallbackExists is returned when creating a second fallback template
	// for a subtype.
	ErrFallbackExists = errors.New("subtype already has a fallback template")
)
