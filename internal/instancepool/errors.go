package instancepool

import (
	"errors"
	"fmt"
	"time"
)

type timeoutError struct {
	model string
	after time.Duration
}

func (e timeoutError) Error() string {
	return fmt.Sprintf("instance pool %s: no instance available after %s", e.model, e.after)
}

// IsTimeout reports whether Acquire gave up waiting for an instance.
func IsTimeout(err error) bool {
	var e timeoutError
	return errors.As(err, &e)
}

type closedError struct{ model string }

func (e closedError) Error() string { return "instance pool " + e.model + " is closed" }

// IsPoolClosed reports whether the pool was closed.
func IsPoolClosed(err error) bool {
	var e closedError
	return errors.As(err, &e)
}

type drainingError struct{ model string }

func (e drainingError) Error() string { return "instance pool " + e.model + " is draining" }

// IsDraining reports whether the pool refuses work while draining.
func IsDraining(err error) bool {
	var e drainingError
	return errors.As(err, &e)
}

type queueFullError struct {
	model string
	depth int
}

func (e queueFullError) Error() string {
	return fmt.Sprintf("instance pool %s: %d callers already waiting", e.model, e.depth)
}

// IsQueueFull reports whether Acquire was refused because too many callers wait.
func IsQueueFull(err error) bool {
	var e queueFullError
	return errors.As(err, &e)
}

type instanceNotFoundError struct{ model, id string }

func (e instanceNotFoundError) Error() string {
	return "instance pool " + e.model + ": no instance " + e.id
}

// IsInstanceNotFound reports whether an instance id did not name a live instance.
func IsInstanceNotFound(err error) bool {
	var e instanceNotFoundError
	return errors.As(err, &e)
}

var errWeightsGone = errors.New("weights block is no longer valid")

// ErrNotBusy is returned when releasing an instance the caller does not hold.
var ErrNotBusy = errors.New("instancepool: instance is not busy")
