package memory

import (
	"errors"
	"fmt"
)

type outOfMemoryError struct {
	pool string
	size int
}

func (e outOfMemoryError) Error() string {
	return fmt.Sprintf("memory pool %q: no free block for %d bytes", e.pool, e.size)
}

// IsOutOfMemory reports whether err is a bounded-pool allocation failure.
func IsOutOfMemory(err error) bool {
	var e outOfMemoryError
	return errors.As(err, &e)
}

type invalidHandleError struct{ reason string }

func (e invalidHandleError) Error() string { return "invalid memory handle: " + e.reason }

// IsInvalidHandle reports whether err came from a stale, foreign or already freed handle.
func IsInvalidHandle(err error) bool {
	var e invalidHandleError
	return errors.As(err, &e)
}

type poolClosedError struct{ pool string }

func (e poolClosedError) Error() string { return fmt.Sprintf("memory pool %q is closed", e.pool) }

// IsPoolClosed reports whether the pool was already destroyed.
func IsPoolClosed(err error) bool {
	var e poolClosedError
	return errors.As(err, &e)
}

// ErrZeroSize is returned by Alloc for a zero-byte request.
var ErrZeroSize = errors.New("memory: zero-size allocation")

// ErrLastReference is returned by Unref when only one reference remains;
// the last reference is dropped with Free.
var ErrLastReference = errors.New("memory: unref of last reference, use Free")
