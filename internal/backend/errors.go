package backend

import (
	"errors"
	"fmt"

	"modyn/pkg/abi"
)

type unavailableError struct{ id abi.BackendID }

func (e unavailableError) Error() string {
	return fmt.Sprintf("backend %q: no registered or discoverable factory", e.id)
}

// IsBackendUnavailable reports whether no factory could be found for a backend id.
func IsBackendUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e)
}

// ErrInvalidFactory is returned for nil factories or factories without an id or constructor.
var ErrInvalidFactory = errors.New("backend: malformed factory")

// ErrRegistryFull is returned when the configured factory ceiling is reached.
var ErrRegistryFull = errors.New("backend: registry is full")

type unknownExtensionError struct{ path string }

func (e unknownExtensionError) Error() string {
	return fmt.Sprintf("cannot detect backend for %q", e.path)
}

// IsUnknownExtension reports whether DetectBackend did not recognise a file.
func IsUnknownExtension(err error) bool {
	var e unknownExtensionError
	return errors.As(err, &e)
}
