// Package channel carries the message vocabulary between kiosks and
// the session engine over a persistent bidirectional transport.
//
// Messages for a single machine are delivered in publish order while a
// connection holds; no ordering is guaranteed across a reconnect
// boundary. Handlers run to completion before the next message for the
// same machine is dispatched.
package channel

import (
	"context"
	"encoding/json"
)

// HandlerFunc processes one inbound message payload.
type HandlerFunc func(ctx context.Context, data []byte) error

// EngineHandlerFunc processes one inbound message on the engine side,
// which listens across machines.
type EngineHandlerFunc func(ctx context.Context, machineID string, data []byte) error

// Conn is the kiosk-side end of the channel, bound to one machine.
// Handle registrations must be completed before traffic is expected;
// there is no unregistration.
type Conn interface {
	// Publish sends a message toward the engine. The result of the
	// message, if any, arrives as a later inbound message, never as a
	// return value.
	Publish(ctx context.Context, kind Kind, payload any) error

	// Handle registers the handler invoked for inbound messages of the
	// given kind. A registration failure leaves the kind unhandled, so
	// callers must treat it as fatal to session setup.
	Handle(kind Kind, fn HandlerFunc) error

	// OnReconnect registers a callback fired after the transport has
	// re-established a dropped connection. Reconnection itself is owned
	// entirely by the transport.
	OnReconnect(fn func())

	Close() error
}

// Listener is the engine-side end of the channel, receiving from every
// machine and publishing to specific ones.
type Listener interface {
	Handle(kind Kind, fn EngineHandlerFunc) error

	// PublishTo sends a message to one machine.
	PublishTo(ctx context.Context, machineID string, kind Kind, payload any) error

	Close() error
}

func encode(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}
