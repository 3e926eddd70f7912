package entry

import "errors"

// ErrInvalidEntry is the sentinel wrapped by every InvalidError.
var ErrInvalidEntry = errors.New("invalid entry")

// InvalidError is returned when an entry is malformed or oversized. It is a
// caller error and must not be retried.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return "invalid entry: " + e.Reason
}

func (e *InvalidError) Unwrap() error {
	return ErrInvalidEntry
}
