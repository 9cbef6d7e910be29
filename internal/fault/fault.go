// Package fault defines the error taxonomy shared by the provisioning and
// trading paths. Every failure surfaced to a caller carries a Category so the
// HTTP layer can map it without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Category classifies a failure.
type Category string

const (
	// InputValidation marks requests rejected before any I/O.
	InputValidation Category = "input_validation"
	// OracleRejection marks prices outside the oracle bounds.
	OracleRejection Category = "oracle_rejection"
	// InsufficientFunds marks balance checks that failed before submission.
	InsufficientFunds Category = "insufficient_funds"
	// LedgerTransient marks submissions that failed because the attached
	// blockhash expired; retried up to the attempt ceiling.
	LedgerTransient Category = "ledger_transient"
	// AlreadyExists marks resources that were created by an earlier call or a
	// racing one. The provisioner treats these as success.
	AlreadyExists Category = "already_exists"
	// LedgerFailure marks any other rejected instruction.
	LedgerFailure Category = "ledger_failure"
	// NotFound marks missing referenced resources.
	NotFound Category = "not_found"
	// Unauthorized marks callers that are not the configured authority.
	Unauthorized Category = "unauthorized"
)

// Error is a categorized failure with the underlying cause preserved.
type Error struct {
	Category Category
	Message  string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a categorized error.
func New(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a categorized error around a cause.
func Wrap(cause error, cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CategoryOf extracts the category from an error chain. Uncategorized errors
// report LedgerFailure, the conservative default for anything that reached
// the ledger.
func CategoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	return LedgerFailure
}

// Is reports whether the error chain carries the given category.
func Is(err error, cat Category) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Category == cat
}
