package model

import "errors"

// Error classes shared by every layer. Call sites wrap them with
// fmt.Errorf("%w: ...") and callers branch with errors.Is.
var (
	// ErrValidation marks malformed or missing input. Nothing was written.
	ErrValidation = errors.New("validation failed")

	// ErrPreconditionFailed marks an action incompatible with current state.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrNotFound marks a reference to an unknown record.
	ErrNotFound = errors.New("not found")

	// ErrTransientDelivery marks a delivery channel failure that may succeed later.
	ErrTransientDelivery = errors.New("transient delivery failure")
)
