package models

import "errors"

// Error taxonomy shared by the tracker, registry and generation layers.
// Callers wrap these with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrValidation marks bad or missing request input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown work order key. Never retried.
	ErrNotFound = errors.New("work order not found")
	// ErrIndexOutOfRange marks a step index outside [0, len(steps)).
	ErrIndexOutOfRange = errors.New("step index out of range")
	// ErrTransport marks a tracker or model-service failure.
	ErrTransport = errors.New("transport error")
	// ErrDependencyUnavailable marks a required capability that is not configured.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrNotLoaded is returned by registry reads before the first refresh.
	ErrNotLoaded = errors.New("work order registry not loaded")
)
