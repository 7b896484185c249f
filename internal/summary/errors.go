package summary

import "errors"

// Domain errors for summaries.
var (
	// ErrNoData indicates there are no records to summarise.
	ErrNoData = errors.New("summary: no records")
)
