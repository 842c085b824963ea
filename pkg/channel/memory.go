package channel

import (
	"context"
	"errors"
	"sync"
)

// MemoryNetwork is an in-process channel transport. Dispatch is
// synchronous and in order: a publish returns after every registered
// handler for the message has run to completion. Tests and the local
// development profile use it in place of NATS.
type MemoryNetwork struct {
	mu       sync.Mutex
	handlers map[Kind][]EngineHandlerFunc
	kiosks   map[string]*MemoryConn
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		handlers: make(map[Kind][]EngineHandlerFunc),
		kiosks:   make(map[string]*MemoryConn),
	}
}

// Kiosk returns the kiosk-side connection for the given machine,
// creating it on first use.
func (n *MemoryNetwork) Kiosk(machineID string) *MemoryConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	if conn, ok := n.kiosks[machineID]; ok {
		return conn
	}
	conn := &MemoryConn{
		network:   n,
		machineID: machineID,
		handlers:  make(map[Kind][]HandlerFunc),
	}
	n.kiosks[machineID] = conn
	return conn
}

// Handle registers an engine-side handler.
func (n *MemoryNetwork) Handle(kind Kind, fn EngineHandlerFunc) error {
	n.mu.Lock()
	n.handlers[kind] = append(n.handlers[kind], fn)
	n.mu.Unlock()
	return nil
}

// PublishTo delivers a message to the kiosk side of one machine.
func (n *MemoryNetwork) PublishTo(ctx context.Context, machineID string, kind Kind, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	n.mu.Lock()
	conn := n.kiosks[machineID]
	n.mu.Unlock()
	if conn == nil {
		return errors.New("no kiosk connected for machine " + machineID)
	}
	conn.deliver(ctx, kind, data)
	return nil
}

func (n *MemoryNetwork) Close() error { return nil }

func (n *MemoryNetwork) deliver(ctx context.Context, machineID string, kind Kind, data []byte) {
	n.mu.Lock()
	fns := append([]EngineHandlerFunc{}, n.handlers[kind]...)
	n.mu.Unlock()
	for _, fn := range fns {
		_ = fn(ctx, machineID, data)
	}
}

// MemoryConn is the kiosk side of a MemoryNetwork.
type MemoryConn struct {
	network   *MemoryNetwork
	machineID string

	mu          sync.Mutex
	handlers    map[Kind][]HandlerFunc
	onReconnect []func()
	closed      bool

	// Sent records every outbound message for assertions.
	sentMu sync.Mutex
	sent   []SentMessage
}

// SentMessage is one outbound message recorded by a MemoryConn.
type SentMessage struct {
	Kind Kind
	Data []byte
}

func (c *MemoryConn) Publish(ctx context.Context, kind Kind, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("channel closed")
	}
	c.sentMu.Lock()
	c.sent = append(c.sent, SentMessage{Kind: kind, Data: data})
	c.sentMu.Unlock()
	c.network.deliver(ctx, c.machineID, kind, data)
	return nil
}

func (c *MemoryConn) Handle(kind Kind, fn HandlerFunc) error {
	c.mu.Lock()
	c.handlers[kind] = append(c.handlers[kind], fn)
	c.mu.Unlock()
	return nil
}

func (c *MemoryConn) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.mu.Unlock()
}

// TriggerReconnect simulates the transport re-establishing a dropped
// connection.
func (c *MemoryConn) TriggerReconnect() {
	c.mu.Lock()
	callbacks := append([]func(){}, c.onReconnect...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Sent returns a copy of every message published so far.
func (c *MemoryConn) Sent() []SentMessage {
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	return append([]SentMessage{}, c.sent...)
}

func (c *MemoryConn) deliver(ctx context.Context, kind Kind, data []byte) {
	c.mu.Lock()
	fns := append([]HandlerFunc{}, c.handlers[kind]...)
	c.mu.Unlock()
	for _, fn := range fns {
		_ = fn(ctx, data)
	}
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
