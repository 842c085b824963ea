package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kioskd/pkg/channel"
)

func newRelayFixture(t *testing.T) (*ActionRelay, *channel.MemoryConn, *TokenStore, *IdleMonitor) {
	t.Helper()
	net := channel.NewMemoryNetwork()
	conn := net.Kiosk("machine-a")
	tokens := NewTokenStore(NewMemoryStorage(), "machine-a", nil)
	idle := NewIdleMonitor(time.Hour, nil)
	t.Cleanup(idle.Stop)
	return NewActionRelay(conn, tokens, idle), conn, tokens, idle
}

func TestActionRelayWithoutTokenSendsNothing(t *testing.T) {
	relay, conn, _, idle := newRelayFixture(t)

	err := relay.Send(context.Background(), "checkout-item", map[string]any{"item_id": "i-1"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Send() error = %v, want ErrAccessDenied", err)
	}
	if sent := conn.Sent(); len(sent) != 0 {
		t.Fatalf("relay sent %d messages without a token", len(sent))
	}
	idle.mu.Lock()
	timer := idle.timer
	idle.mu.Unlock()
	if timer != nil {
		t.Fatal("denied send must not touch the idle countdown")
	}
}

func TestActionRelayNamedAction(t *testing.T) {
	relay, conn, tokens, _ := newRelayFixture(t)
	tokens.Store("T1", time.Now().Unix()+60)

	if err := relay.Send(context.Background(), "checkout-item", map[string]any{"item_id": "i-1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := conn.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	if sent[0].Kind != channel.KindAction {
		t.Fatalf("got kind %q, want %q", sent[0].Kind, channel.KindAction)
	}

	var action channel.Action
	if err := json.Unmarshal(sent[0].Data, &action); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	if action.Token != "T1" || action.Name != "checkout-item" {
		t.Fatalf("action = %+v, want token T1 name checkout-item", action)
	}
	if action.Data["item_id"] != "i-1" {
		t.Fatalf("action data = %v, want item_id i-1", action.Data)
	}
}

func TestActionRelayResetUsesResetKind(t *testing.T) {
	relay, conn, tokens, _ := newRelayFixture(t)
	tokens.Store("T1", time.Now().Unix()+60)

	if err := relay.Send(context.Background(), ActionReset, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := conn.Sent()
	if len(sent) != 1 || sent[0].Kind != channel.KindResetAction {
		t.Fatalf("got %v, want one %q message", sent, channel.KindResetAction)
	}

	var reset channel.ResetAction
	if err := json.Unmarshal(sent[0].Data, &reset); err != nil {
		t.Fatalf("unmarshal reset: %v", err)
	}
	if reset.Token != "T1" {
		t.Fatalf("reset token = %q, want T1", reset.Token)
	}
}

func TestActionRelaySendResetsIdleCountdown(t *testing.T) {
	relay, _, tokens, idle := newRelayFixture(t)
	idle.debounce = 0
	tokens.Store("T1", time.Now().Unix()+60)

	idle.Activity()
	idle.mu.Lock()
	before := idle.lastReset
	idle.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	if err := relay.Send(context.Background(), "status", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	idle.mu.Lock()
	after := idle.lastReset
	idle.mu.Unlock()
	if !after.After(before) {
		t.Fatal("successful send did not reset the idle countdown")
	}
}
