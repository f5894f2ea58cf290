/*
errors.go - Centralized error types for the points ledger

PURPOSE:
  All ledger error classes in one place. Callers classify with
  errors.Is / errors.As; the HTTP layer maps each class to a distinct
  status and machine-readable code so a UI can tell "doesn't exist"
  from "not enough points" from "try again".

ERROR CATEGORIES:
  1. Not-found     - referenced person/item absent
  2. Invalid input - malformed arguments (zero grant, negative cost)
  3. Insufficient  - redemption cost exceeds balance
  4. Conflict      - uniqueness violation on creation
  5. Storage       - transient backing-store failure (retryable)

PROPAGATION:
  Every ledger error is terminal for the call: no partial commit, no
  internal retry. Only storage failures are worth retrying verbatim.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPersonNotFound is returned when a referenced person doesn't exist.
	ErrPersonNotFound = errors.New("person not found")

	// ErrItemNotFound is returned when a referenced catalog item doesn't exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidAmount is returned for a zero grant amount. Grants have no
	// upper or lower bound: negative amounts are the correction path.
	ErrInvalidAmount = errors.New("grant amount must be non-zero")

	// ErrInvalidCost is returned when creating an item with a negative cost.
	ErrInvalidCost = errors.New("item cost must be non-negative")

	// ErrInsufficientPoints is returned when a redemption cost exceeds the
	// person's balance. Retrying without a balance change fails identically.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrNameTaken is returned when creating a person whose name exists.
	ErrNameTaken = errors.New("name already taken")

	// ErrIdentityTaken is returned when linking an external identity that is
	// already linked to another person.
	ErrIdentityTaken = errors.New("external identity already linked")

	// ErrNotAuthorized is returned when the actor lacks the capability for
	// the requested operation.
	ErrNotAuthorized = errors.New("caller not authorized")

	// ErrStorage marks a transient backing-store failure. The whole atomic
	// unit aborted cleanly; the caller may retry.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports a redemption that would overdraw the
// balance. Balance is the value observed inside the aborted transaction.
type InsufficientPointsError struct {
	PersonID PersonID
	ItemID   ItemID
	Balance  int64
	Cost     int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: balance %d, cost %d, short %d",
		e.Balance, e.Cost, e.Cost-e.Balance)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// StorageError wraps an unexpected database error so callers can both
// classify it (ErrStorage) and inspect the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Note the ledger itself never retries: grants are not idempotent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPersonNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsConflict returns true for uniqueness violations on creation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNameTaken) ||
		errors.Is(err, ErrIdentityTaken)
}

// IsClientError returns true if the error is the caller's fault and must
// not be retried verbatim.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		IsConflict(err) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCost) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrNotAuthorized)
}
