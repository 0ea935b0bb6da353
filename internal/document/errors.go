package document

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing document record or a stored file that is
// no longer on disk. It is never used for "verification did not match",
// which is a well-typed result, not an error.
var ErrNotFound = errors.New("document not found")

// ErrForbidden reports that the actor's role does not permit the
// requested operation on this specific document.
var ErrForbidden = errors.New("operation not permitted for this document")

// ValidationError reports a malformed input payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a unique-constraint violation at create time.
// Verification-code collisions are retried internally and never surface;
// a FileHash conflict means the uploaded content already exists under
// another record.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}
