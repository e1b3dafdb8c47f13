package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent marks an inbound event that is dropped without effect.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownRoom is logged when a private broadcast finds no members.
	// It is never returned: rooms come into existence on first join.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrSessionClosed is returned for events on a disconnected session.
	ErrSessionClosed = errors.New("session closed")
)

// StorageError wraps a failed event log or presence call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err for op, returning nil for a nil err.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}
