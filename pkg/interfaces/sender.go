package interfaces

import "classcast/pkg/types"

// Sender is the delivery side of a client connection. The router and group
// broadcaster fan out through this interface so routing stays auditable and
// testable without a live transport.
type Sender interface {
	// ConnectionID returns the opaque identifier unique to this live connection.
	ConnectionID() string

	// Send delivers an event to the client. Implementations must be safe for
	// concurrent use; the WebSocket implementation serializes through a
	// single writer goroutine.
	Send(event *types.Event) error

	// Close tears down the connection and releases its resources.
	Close() error
}
