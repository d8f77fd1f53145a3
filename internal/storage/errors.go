package storage

import (
	"context"
	"errors"
)

// Sentinel errors for the Scout error taxonomy. Callers match with
// errors.Is; components wrap them with fmt.Errorf("...: %w", Err*) to add
// context. The CLI boundary maps each kind to a distinct exit code.
var (
	// ErrValidation — malformed input (bad tier/category/relevance/URL).
	// Rejected before any state mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict — a precondition about existing state is violated, e.g.
	// creating a session while one is active. No partial effect.
	ErrConflict = errors.New("conflict with existing state")

	// ErrNotFound — referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIncomplete — advisory quality gate unmet; overridable with force.
	ErrIncomplete = errors.New("quality gate unmet")

	// ErrTimeout — external I/O exceeded its bound. The operation had no
	// effect and is safe to retry.
	ErrTimeout = errors.New("operation timed out")

	// ErrCorrupt — persisted state failed an integrity check on load.
	// Fatal for that entity; never auto-repaired.
	ErrCorrupt = errors.New("storage corrupted")
)

// MapTimeout rewraps context deadline errors as ErrTimeout so callers see
// one taxonomy regardless of where the deadline fired.
func MapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
