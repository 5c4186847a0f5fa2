package plugin

import (
	"errors"
	"fmt"
)

type loadError struct {
	path   string
	reason string
	err    error
}

func (e loadError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("load plugin %s: %s: %v", e.path, e.reason, e.err)
	}
	return fmt.Sprintf("load plugin %s: %s", e.path, e.reason)
}

func (e loadError) Unwrap() error { return e.err }

// IsLoadFailure reports whether a library could not be loaded: missing file or
// symbol, nil or corrupted metadata, incompatible host or unmet dependency.
func IsLoadFailure(err error) bool {
	var e loadError
	return errors.As(err, &e)
}

type notFoundError struct{ name string }

func (e notFoundError) Error() string { return fmt.Sprintf("plugin %q is not loaded", e.name) }

// IsNotFound reports whether the named plugin is not loaded.
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e)
}

type stateError struct {
	name  string
	state State
	op    string
}

func (e stateError) Error() string {
	return fmt.Sprintf("plugin %q: cannot %s in state %s", e.name, e.op, e.state)
}

// IsInvalidState reports whether an operation was refused because of the plugin's state.
func IsInvalidState(err error) bool {
	var e stateError
	return errors.As(err, &e)
}

// ErrUnsupported is returned when a plugin does not implement an optional entry.
var ErrUnsupported = errors.New("plugin: operation not supported")

type panicError struct {
	op  string
	val any
}

func (e panicError) Error() string { return fmt.Sprintf("plugin %s panicked: %v", e.op, e.val) }
