package dispatch

import (
	"context"
	"errors"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
)

// ErrUnsupportedOperation is returned by a Transport that cannot serve a given operation.
// The dispatcher treats it as a no-op.
var ErrUnsupportedOperation = errors.New("operation not supported by transport")

// Transport delivers payloads to one analytics destination.
// Implementations may deliver asynchronously; asynchronous failures are reported through the
// ErrorHandler handed to the TransportFactory.
type Transport interface {
	Identify(ctx context.Context, p *v1.Payload) error
	Track(ctx context.Context, p *v1.Payload) error
	Page(ctx context.Context, p *v1.Payload) error

	// Close flushes buffered payloads best-effort and releases resources.
	Close(ctx context.Context) error
}

// ErrorHandler receives every transport failure, synchronous or not.
type ErrorHandler func(op v1.Operation, err error)

// TransportFactory builds the transport once the dispatcher gate is open.
type TransportFactory func(writeKey string, onError ErrorHandler) (Transport, error)
