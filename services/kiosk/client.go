package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"kioskd/pkg/channel"
)

// Options configures a Client.
type Options struct {
	// MachineID is the machine-configuration identifier this kiosk is
	// provisioned for.
	MachineID string

	// Logger receives operational log lines. Optional.
	Logger *log.Logger

	// Notify surfaces user-visible blocking notices, access-denied
	// failures in particular. Optional.
	Notify func(err error)

	// OnState is invoked with every replaced machine state snapshot so
	// the UI layer can re-render. Optional.
	OnState func(state channel.MachineState)
}

// Client is the kiosk-side session core: it negotiates the token
// handshake over the channel, tracks the current configuration and
// state snapshots, and resets the session after the configured
// inactivity timeout.
//
// Session state is guarded by one mutex that each handler takes around
// its state transition; snapshots are replaced wholesale, so readers
// never observe a half-applied update even when the transport delivers
// different kinds concurrently.
type Client struct {
	conn    channel.Conn
	tokens  *TokenStore
	relay   *ActionRelay
	idle    *IdleMonitor
	logger  *log.Logger
	notify  func(error)
	onState func(channel.MachineState)

	mu      sync.Mutex
	config  *channel.MachineConfiguration
	state   channel.MachineState
	catalog *Catalog
}

// NewClient assembles the session core on top of the given channel and
// storage. Nothing is sent until Start.
func NewClient(conn channel.Conn, storage Storage, opts Options) (*Client, error) {
	if conn == nil {
		return nil, errors.New("channel is required")
	}
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	if opts.MachineID == "" {
		return nil, errors.New("machine id is required")
	}

	c := &Client{
		conn:    conn,
		tokens:  NewTokenStore(storage, opts.MachineID, opts.Logger),
		logger:  opts.Logger,
		notify:  opts.Notify,
		onState: opts.OnState,
		state:   channel.MachineState{Step: channel.StepInitial},
		catalog: LoadCatalog(BaselineLanguage),
	}
	// The countdown stays dormant until a configuration supplies the
	// inactivity timeout.
	c.idle = NewIdleMonitor(0, c.onIdleDeadline)
	c.relay = NewActionRelay(conn, c.tokens, c.idle)
	return c, nil
}

// Start registers the channel handlers and performs the initial
// session negotiation: request a token when none is stored, otherwise
// resume with client-ready. Failed sends are not retried; the channel
// transport's own reconnection is the only recovery path.
func (c *Client) Start(ctx context.Context) error {
	handlers := []struct {
		kind channel.Kind
		fn   channel.HandlerFunc
	}{
		{channel.KindTokenIssued, c.handleTokenIssued},
		{channel.KindConfiguration, c.handleConfiguration},
		{channel.KindStateUpdate, c.handleStateUpdate},
	}
	for _, h := range handlers {
		if err := c.conn.Handle(h.kind, h.fn); err != nil {
			return fmt.Errorf("register %s handler: %w", h.kind, err)
		}
	}
	c.conn.OnReconnect(func() { c.handleReconnect(ctx) })

	if token, ok := c.tokens.Get(); ok {
		return c.conn.Publish(ctx, channel.KindClientReady, channel.ClientReady{Token: token.Value})
	}
	return c.conn.Publish(ctx, channel.KindRequestToken, channel.RequestToken{MachineID: c.tokens.machineID})
}

// Send relays a user action to the engine. Access-denied failures are
// surfaced through the notifier and returned.
func (c *Client) Send(ctx context.Context, name string, data map[string]any) error {
	err := c.relay.Send(ctx, name, data)
	if errors.Is(err, ErrAccessDenied) {
		c.surface(err)
	}
	return err
}

// Configuration returns the current machine configuration, or false
// before one has arrived.
func (c *Client) Configuration() (channel.MachineConfiguration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config == nil {
		return channel.MachineConfiguration{}, false
	}
	return *c.config, true
}

// State returns the latest machine state snapshot.
func (c *Client) State() channel.MachineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Text resolves a message key through the active language catalog.
func (c *Client) Text(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Text(key)
}

// Close stops the idle countdown and releases the channel.
func (c *Client) Close() error {
	c.idle.Stop()
	return c.conn.Close()
}

func (c *Client) handleTokenIssued(ctx context.Context, data []byte) error {
	var msg channel.TokenIssued
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.tokens.Store(msg.Token, msg.Expiry)
	return c.conn.Publish(ctx, channel.KindClientReady, channel.ClientReady{Token: msg.Token})
}

func (c *Client) handleConfiguration(_ context.Context, data []byte) error {
	var cfg channel.MachineConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}

	c.mu.Lock()
	c.config = &cfg
	c.catalog = LoadCatalog(cfg.DefaultLanguage)
	c.mu.Unlock()

	c.idle.SetTimeout(time.Duration(cfg.InactivityTimeoutSec) * time.Second)
	c.idle.Activity()
	c.logf("configuration %s loaded, language %s, idle timeout %ds",
		cfg.ID, c.catalog.Language, cfg.InactivityTimeoutSec)
	return nil
}

func (c *Client) handleStateUpdate(_ context.Context, data []byte) error {
	var state channel.MachineState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.idle.Activity()
	if c.onState != nil {
		c.onState(state)
	}
	return nil
}

// handleReconnect re-reads the token store after the transport has
// re-established the connection. Without a stored token the session is
// over: the failure is surfaced and nothing is sent, no retry loop.
func (c *Client) handleReconnect(ctx context.Context) {
	token, ok := c.tokens.Get()
	if !ok {
		c.surface(ErrAccessDenied)
		return
	}
	if err := c.conn.Publish(ctx, channel.KindClientReady, channel.ClientReady{Token: token.Value}); err != nil {
		c.logf("client-ready after reconnect: %v", err)
	}
}

// onIdleDeadline runs on every idle deadline expiry. At the initial
// step the countdown simply restarts, preventing reset storms while
// the machine idles on the home screen.
func (c *Client) onIdleDeadline() {
	c.mu.Lock()
	step := c.state.Step
	c.mu.Unlock()

	if step == channel.StepInitial || step == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.relay.Send(ctx, ActionReset, nil); err != nil {
		if errors.Is(err, ErrAccessDenied) {
			c.surface(err)
			return
		}
		c.logf("idle reset: %v", err)
	}
}

func (c *Client) surface(err error) {
	c.logf("%v", err)
	if c.notify != nil {
		c.notify(err)
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
