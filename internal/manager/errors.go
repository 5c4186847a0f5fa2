package manager

import "errors"

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct {
	modelID string
	err     error
}

func (e tooBusyError) Error() string {
	if e.err != nil {
		return "too busy: " + e.modelID + ": " + e.err.Error()
	}
	return "too busy: " + e.modelID
}

func (e tooBusyError) Unwrap() error { return e.err }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error when a requested model id is not present in the catalog.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing backend or exhausted memory
// so the HTTP layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct {
	msg string
	err error
}

func (e dependencyUnavailableError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e dependencyUnavailableError) Unwrap() error { return e.err }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return "invalid request: " + e.msg }

// IsInvalidRequest reports whether err was caused by a malformed request (return 400).
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}

// ErrManagerClosed is returned by every operation after Close.
var ErrManagerClosed = errors.New("manager closed")
