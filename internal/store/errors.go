package store

import "errors"

// Domain errors for the partition store.
var (
	// ErrWrite indicates a record could not be durably written.
	// Callers log it and keep polling; one lost write must not stop acquisition.
	ErrWrite = errors.New("store: write failed")

	// ErrRead indicates a partition file could not be read.
	ErrRead = errors.New("store: read failed")

	// ErrMalformed indicates a partition contains a row that cannot be parsed.
	ErrMalformed = errors.New("store: malformed row")

	// ErrHeaderMismatch indicates a record whose registers differ from the
	// columns of the partition it would be appended to.
	ErrHeaderMismatch = errors.New("store: record does not match partition header")

	// ErrEmptyRecord indicates an attempt to append a record with no values.
	ErrEmptyRecord = errors.New("store: record has no values")
)
