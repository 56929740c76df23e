/*

This file defines the error taxonomy shared across the manager.

Callers distinguish the four classes with errors.Is: validation errors mean the
input must be fixed, policy errors mean the same call may succeed later, external
failures were absorbed into a compensating action, and invariant violations are
integration bugs.

*/

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers unsupported chains, amounts outside bounds and
	// malformed tick ranges. Rejected before any state change.
	ErrValidation = errors.New("validation error")

	// ErrPolicy covers decisions that are currently declined but may succeed
	// later: not profitable, cooldown active, system paused.
	ErrPolicy = errors.New("policy error")

	// ErrExternal covers bridge quote/transfer call failures. These are caught
	// at the boundary and converted into a compensating refund.
	ErrExternal = errors.New("external failure")

	// ErrInvariant covers transitions out of terminal states and duplicate IDs.
	// Treated as a programming or integration bug.
	ErrInvariant = errors.New("invariant violation")
)

// Well-known policy conditions, distinguishable from each other with errors.Is.
var (
	ErrPaused         = fmt.Errorf("%w: system paused", ErrPolicy)
	ErrCooldownActive = fmt.Errorf("%w: rebalance cooldown active", ErrPolicy)
	ErrNotProfitable  = fmt.Errorf("%w: migration not profitable", ErrPolicy)
)

// Validationf wraps a formatted message as a validation error.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Externalf wraps a formatted message as an external failure.
func Externalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrExternal, fmt.Sprintf(format, args...))
}

// Invariantf wraps a formatted message as an invariant violation.
func Invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
