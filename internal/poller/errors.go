package poller

import "errors"

// Domain errors for the poller.
var (
	// ErrInvalidOptions indicates New was given an unusable configuration.
	ErrInvalidOptions = errors.New("poller: invalid options")

	// ErrAlreadyRunning indicates Run or Start was called on a running poller.
	ErrAlreadyRunning = errors.New("poller: already running")

	// ErrStopped indicates Start was called after Stop.
	ErrStopped = errors.New("poller: stopped")

	// ErrReadAborted indicates a read failed in a way another cycle cannot
	// fix (closed client, invalid request) and the loop gave up.
	ErrReadAborted = errors.New("poller: read aborted")
)
