package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// Subject layout: kiosk.<machine>.c2s.<kind> for client-to-server and
// kiosk.<machine>.s2c.<kind> for server-to-client.
const subjectPrefix = "kiosk"

func clientSubject(machineID string, kind Kind) string {
	return fmt.Sprintf("%s.%s.c2s.%s", subjectPrefix, machineID, kind)
}

func serverSubject(machineID string, kind Kind) string {
	return fmt.Sprintf("%s.%s.s2c.%s", subjectPrefix, machineID, kind)
}

// NATSConn is the kiosk-side channel over a NATS connection. Reconnect
// handling is delegated to the NATS client; OnReconnect callbacks fire
// from its reconnect handler.
type NATSConn struct {
	conn      *nats.Conn
	machineID string

	mu          sync.Mutex
	subs        []*nats.Subscription
	onReconnect []func()
}

// DialKiosk connects the kiosk side of the channel for one machine.
func DialKiosk(url, machineID string, opts ...nats.Option) (*NATSConn, error) {
	if strings.TrimSpace(machineID) == "" {
		return nil, errors.New("machine id is required")
	}

	c := &NATSConn{machineID: machineID}

	opts = append(opts,
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(*nats.Conn) { c.fireReconnect() }),
	)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = nc
	return c, nil
}

// Publish sends a message on the machine's client-to-server subject.
func (c *NATSConn) Publish(ctx context.Context, kind Kind, payload any) error {
	if c == nil {
		return errors.New("nil channel")
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(clientSubject(c.machineID, kind), data)
}

// Handle subscribes the handler to the machine's server-to-client
// subject for the given kind.
func (c *NATSConn) Handle(kind Kind, fn HandlerFunc) error {
	subject := serverSubject(c.machineID, kind)
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		_ = fn(context.Background(), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

func (c *NATSConn) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.mu.Unlock()
}

func (c *NATSConn) fireReconnect() {
	c.mu.Lock()
	callbacks := append([]func(){}, c.onReconnect...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Close drains the connection, falling back to an immediate close.
func (c *NATSConn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}

// NATSListener is the engine-side channel, subscribed across machines.
type NATSListener struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// DialEngine connects the engine side of the channel.
func DialEngine(url string, opts ...nats.Option) (*NATSListener, error) {
	opts = append(opts, nats.MaxReconnects(-1))
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSListener{conn: nc}, nil
}

// Handle subscribes the handler to the given kind across all machines.
// The machine identifier is recovered from the subject.
func (l *NATSListener) Handle(kind Kind, fn EngineHandlerFunc) error {
	subject := fmt.Sprintf("%s.*.c2s.%s", subjectPrefix, kind)
	sub, err := l.conn.Subscribe(subject, func(msg *nats.Msg) {
		parts := strings.Split(msg.Subject, ".")
		if len(parts) != 4 {
			return
		}
		_ = fn(context.Background(), parts[1], msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	l.mu.Lock()
	l.subs = append(l.subs, sub)
	l.mu.Unlock()
	return nil
}

// PublishTo sends a message on one machine's server-to-client subject.
func (l *NATSListener) PublishTo(ctx context.Context, machineID string, kind Kind, payload any) error {
	if l == nil {
		return errors.New("nil listener")
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.conn.Publish(serverSubject(machineID, kind), data)
}

// Close drains the connection, falling back to an immediate close.
func (l *NATSListener) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	if err := l.conn.Drain(); err != nil {
		l.conn.Close()
		return err
	}
	return nil
}
