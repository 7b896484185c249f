package registers

import "errors"

// Domain errors for catalog construction.
var (
	// ErrInvalidIndex is returned for a negative register index.
	ErrInvalidIndex = errors.New("registers: invalid register index")

	// ErrDuplicateIndex is returned when two descriptors share an index.
	ErrDuplicateIndex = errors.New("registers: duplicate register index")

	// ErrInvalidScale is returned for a scale other than 1, 10 or 100.
	ErrInvalidScale = errors.New("registers: invalid scale")

	// ErrUnknownKind is returned by ForKind for an unknown instrument kind.
	ErrUnknownKind = errors.New("registers: unknown instrument kind")
)
