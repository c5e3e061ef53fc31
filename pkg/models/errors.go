package models

import "errors"

var (
	// ErrMalformedRecord marks a record that violates the schema: bad
	// coordinates, negative capacity or price, empty id.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDuplicateID marks an insert collision in strict-insert mode.
	ErrDuplicateID = errors.New("duplicate station id")

	// ErrInternalInconsistency marks a state that should be unreachable,
	// such as the validator classifying a record no rule selected. It is
	// always surfaced, never swallowed.
	ErrInternalInconsistency = errors.New("internal inconsistency")
)
