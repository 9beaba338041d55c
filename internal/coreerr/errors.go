// internal/coreerr/errors.go
package coreerr

import "errors"

// Sentinel errors for the coordination service's error kinds. Callers
// classify a returned error with ClassifyOf and act on the kind rather than the
// specific message.
var (
	// ErrInvalidInput covers malformed plans, out-of-range times, and bad
	// vehicle IDs. Returned synchronously; never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflictDetected means a candidate mission was rejected; the
	// conflict list is attached separately by the caller.
	ErrConflictDetected = errors.New("conflict detected")

	// ErrVehicleUnavailable means the driver reports the vehicle missing or
	// offline.
	ErrVehicleUnavailable = errors.New("vehicle unavailable")

	// ErrDriverError means a driver command was rejected or timed out.
	ErrDriverError = errors.New("driver error")

	// ErrPersistenceError means a persistence operation failed. The store
	// implementations wrap every failure in this one sentinel and do not
	// distinguish transient from permanent failures.
	ErrPersistenceError = errors.New("persistence error")

	// ErrOverload means backpressure: a queue overflowed or a subscriber
	// fell permanently behind.
	ErrOverload = errors.New("resource exhausted")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Kind identifies which sentinel an error wraps, for HTTP/WS status mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindConflictDetected
	KindVehicleUnavailable
	KindDriverError
	KindPersistenceError
	KindOverload
	KindNotFound
)

// ClassifyOf returns the Kind of err, or KindUnknown if err does not wrap any
// of the sentinels above.
func ClassifyOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflictDetected):
		return KindConflictDetected
	case errors.Is(err, ErrVehicleUnavailable):
		return KindVehicleUnavailable
	case errors.Is(err, ErrDriverError):
		return KindDriverError
	case errors.Is(err, ErrPersistenceError):
		return KindPersistenceError
	case errors.Is(err, ErrOverload):
		return KindOverload
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}
