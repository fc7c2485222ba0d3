package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the referenced board, note or action does not exist.
// Point reads return it directly; mutations on missing documents wrap it
// with operation context.
var ErrNotFound = errors.New("not found")

// ErrBoardClosed indicates a mutation was attempted on a board whose
// isActive flag has been cleared. Closing is terminal.
var ErrBoardClosed = errors.New("board is closed")

// ErrAlreadyApproved indicates an approval was attempted on an action that
// is already approved. Approval writes all of its fields in one commit, so
// a second approval would silently overwrite approvedBy/approvedAt.
var ErrAlreadyApproved = errors.New("action already approved")

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because a concurrent writer touched the same document and the
// bounded retry budget ran out.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrInvalidTransition indicates a status update that would move an action
// backwards through its lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError reports a caller-supplied argument that is out of range.
// It is always raised before any store interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
