package ws

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected  = errors.New("session not connected")
	ErrInvalidTarget = errors.New("identity and room are required")
	ErrSessionClosed = errors.New("session closed")
)

// TransportError is returned once every connection attempt has failed.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
