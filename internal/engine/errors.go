package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a condition detected during tick execution.
//
// The taxonomy follows the engine's propagation policy: Skip and the
// fail-fast marker are ordinary control-flow values and never appear
// here. Everything else is either locally recoverable (non-exhaustive
// match) or a hard stop (runaway propagation, invariant violation).
// There is no "log and continue with possibly-corrupt state".
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Slot identifies the affected cell, when known.
	Slot SlotKey

	// Tick is the tick during which the condition was detected.
	Tick uint64

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNonExhaustiveMatch indicates a WHEN/WHILE input matched no
	// arm. Recoverable: the node yields Skip and the diagnostic is
	// attached to its SlotKey.
	ErrCodeNonExhaustiveMatch RuntimeErrorCode = "NON_EXHAUSTIVE_MATCH"

	// ErrCodeRunawayPropagation indicates a node re-dirtied itself
	// beyond the iteration bound within one tick. Fatal for that tick:
	// propagation halts and the previous stable state is retained.
	ErrCodeRunawayPropagation RuntimeErrorCode = "RUNAWAY_PROPAGATION"

	// ErrCodeStaleScope indicates an access to a finalized scope.
	// Defensive invariant violation - fatal, never tolerated.
	ErrCodeStaleScope RuntimeErrorCode = "STALE_SCOPE"

	// ErrCodeAddressCollision indicates two differently-derived scopes
	// hashed to the same id. Fatal invariant violation.
	ErrCodeAddressCollision RuntimeErrorCode = "ADDRESS_COLLISION"

	// ErrCodeUnknownPort indicates an external input named a port no
	// link cell listens on.
	ErrCodeUnknownPort RuntimeErrorCode = "UNKNOWN_PORT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if (e.Slot != SlotKey{}) {
		return fmt.Sprintf("%s: %s (slot=%s, tick=%d)", e.Code, e.Message, e.Slot, e.Tick)
	}
	return fmt.Sprintf("%s: %s (tick=%d)", e.Code, e.Message, e.Tick)
}

// Fatal reports whether the error halts the tick rather than being
// locally recoverable.
func (e *RuntimeError) Fatal() bool {
	switch e.Code {
	case ErrCodeNonExhaustiveMatch:
		return false
	default:
		return true
	}
}

func asRuntime(err error, target **RuntimeError) bool {
	return errors.As(err, target)
}

// IsRunawayError returns true for runaway-propagation errors.
// Uses errors.As to handle wrapped errors.
func IsRunawayError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeRunawayPropagation
}

// IsInvariantError returns true for stale-scope and address-collision
// errors.
func IsInvariantError(err error) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == ErrCodeStaleScope || re.Code == ErrCodeAddressCollision
}

func newNonExhaustiveError(slot SlotKey, tick uint64, input string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNonExhaustiveMatch,
		Message: "no pattern arm matched input",
		Slot:    slot,
		Tick:    tick,
		Details: map[string]string{"input": input},
	}
}

func newRunawayError(tick uint64, passes int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRunawayPropagation,
		Message: fmt.Sprintf("propagation did not settle within %d passes", passes),
		Tick:    tick,
	}
}

func newStaleScopeError(scope ScopeId) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStaleScope,
		Message: fmt.Sprintf("access to finalized scope %d", uint64(scope)),
	}
}

func newAddressCollisionError(scope ScopeId) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeAddressCollision,
		Message: fmt.Sprintf("scope id %d derived from two distinct allocation histories", uint64(scope)),
	}
}
