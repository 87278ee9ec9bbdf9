/*
errors.go - Centralized error types for the ledger

ERROR CATEGORIES:
  1. Validation errors - bad hours, status, names or dates. Never retried.
  2. Not-found errors - unknown employee or entry key.
  3. Audit write errors - the audit record could not be stored, so the
     triggering mutation is rolled back and reported as failed.

USAGE:
  if errors.Is(err, ledger.ErrValidation) {
      // surface to the user, do not retry
  }

  var nf *ledger.NotFoundError
  if errors.As(err, &nf) {
      fmt.Println(nf.Kind, nf.Key)
  }

SEE ALSO:
  - reconcile/errors.go: Transport errors raised by sync
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
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is wrapped by every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrAuditWrite is wrapped by AuditWriteError. The mutation it belongs
	// to was not committed.
	ErrAuditWrite = errors.New("audit write failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown employee or entry.
type NotFoundError struct {
	Kind string // "employee" or "entry"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AuditWriteError wraps the storage failure behind a lost audit record.
type AuditWriteError struct {
	Action ActionKind
	Err    error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write for %s failed: %v", e.Action, e.Err)
}

func (e *AuditWriteError) Unwrap() []error { return []error{ErrAuditWrite, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing employee or entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func employeeNotFound(id string) error {
	return &NotFoundError{Kind: "employee", Key: id}
}
