package mirror

import "errors"

var (
	// ErrInvalidOptions is returned by the constructors for missing dependencies.
	ErrInvalidOptions = errors.New("mirror: invalid options")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("mirror: already started")

	// ErrInvalidPayload is returned by DecodeReading.
	ErrInvalidPayload = errors.New("mirror: invalid reading payload")
)
