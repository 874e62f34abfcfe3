package pubsub

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransport = errors.New("transport error")
	ErrClosed    = errors.New("transport closed")
)

// PubSub is a socket-like transport carrying wire lines. Implementations
// filter received lines by byte prefix against the subscribed prefixes.
type PubSub interface {
	Send(data []byte) error
	Subscribe(prefix string) error
	Unsubscribe(prefix string) error
	Recv(ctx context.Context) ([]byte, error)
	Poll(timeout time.Duration) bool
	Close() error
}

// TransportError wraps a failure surfaced by a transport. It matches
// ErrTransport with errors.Is.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
