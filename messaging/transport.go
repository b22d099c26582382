package messaging

import (
	"context"
)

// TransportHandler receives the raw payload of one inbound message.
// Transports call handlers on their own receive goroutine.
type TransportHandler func(payload []byte)

// Transport is a bidirectional named-message channel
type Transport interface {
	// On registers a handler for messages with the given name
	On(name string, handler TransportHandler)

	// Emit sends a named message to the remote side
	Emit(ctx context.Context, name string, payload []byte) error
}

// ConnectedTransport is a transport with an observable connection
type ConnectedTransport interface {
	Transport

	// IsConnected returns connection status
	IsConnected() bool

	// Close closes all resources
	Close() error
}
