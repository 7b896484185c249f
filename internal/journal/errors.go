package journal

import "errors"

// Domain errors for the cycle journal.
var (
	// ErrInvalidRetention indicates Prune was given a non-positive age.
	ErrInvalidRetention = errors.New("journal: retention must be positive")
)
