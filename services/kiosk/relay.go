package kiosk

import (
	"context"

	"kioskd/pkg/channel"
)

// ActionReset is the action name that returns the machine to its
// initial step. It travels on its own message kind, carrying only the
// token.
const ActionReset = "reset"

// ActionRelay forwards user-initiated actions to the engine, attaching
// the current token. Every successful send resets the idle countdown,
// independent of the idle monitor's own triggers. Sends are not
// retried; the channel transport's reconnection is the only recovery
// path.
type ActionRelay struct {
	conn   channel.Conn
	tokens *TokenStore
	idle   *IdleMonitor
}

func NewActionRelay(conn channel.Conn, tokens *TokenStore, idle *IdleMonitor) *ActionRelay {
	return &ActionRelay{conn: conn, tokens: tokens, idle: idle}
}

// Send emits the named action with the current token. When no valid
// token is stored it returns ErrAccessDenied without sending anything
// and without touching the idle countdown.
func (r *ActionRelay) Send(ctx context.Context, name string, data map[string]any) error {
	token, ok := r.tokens.Get()
	if !ok {
		return ErrAccessDenied
	}

	r.idle.Activity()

	if name == ActionReset {
		return r.conn.Publish(ctx, channel.KindResetAction, channel.ResetAction{Token: token.Value})
	}
	return r.conn.Publish(ctx, channel.KindAction, channel.Action{
		Token: token.Value,
		Name:  name,
		Data:  data,
	})
}
