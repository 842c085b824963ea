package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"kioskd/pkg/channel"
)

type noticeRecorder struct {
	mu      sync.Mutex
	notices []error
}

func (r *noticeRecorder) notify(err error) {
	r.mu.Lock()
	r.notices = append(r.notices, err)
	r.mu.Unlock()
}

func (r *noticeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type clientFixture struct {
	net     *channel.MemoryNetwork
	conn    *channel.MemoryConn
	storage *MemoryStorage
	client  *Client
	notices *noticeRecorder
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()
	f := &clientFixture{
		net:     channel.NewMemoryNetwork(),
		storage: NewMemoryStorage(),
		notices: &noticeRecorder{},
	}
	f.conn = f.net.Kiosk("machine-a")

	client, err := NewClient(f.conn, f.storage, Options{
		MachineID: "machine-a",
		Notify:    f.notices.notify,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	f.client = client
	t.Cleanup(func() { client.Close() })
	return f
}

// push injects a server-to-client message.
func (f *clientFixture) push(t *testing.T, kind channel.Kind, payload any) {
	t.Helper()
	if err := f.net.PublishTo(context.Background(), "machine-a", kind, payload); err != nil {
		t.Fatalf("push %s: %v", kind, err)
	}
}

func (f *clientFixture) sentKinds() []channel.Kind {
	sent := f.conn.Sent()
	kinds := make([]channel.Kind, 0, len(sent))
	for _, msg := range sent {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

func TestClientStartWithoutTokenRequestsOne(t *testing.T) {
	f := newClientFixture(t)

	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sent := f.conn.Sent()
	if len(sent) != 1 || sent[0].Kind != channel.KindRequestToken {
		t.Fatalf("sent %v, want one request-token", f.sentKinds())
	}
	var req channel.RequestToken
	if err := json.Unmarshal(sent[0].Data, &req); err != nil {
		t.Fatalf("unmarshal request-token: %v", err)
	}
	if req.MachineID != "machine-a" {
		t.Fatalf("request-token machine id = %q, want machine-a", req.MachineID)
	}
}

func TestClientStartWithStoredTokenResumes(t *testing.T) {
	f := newClientFixture(t)
	f.client.tokens.Store("T1", time.Now().Unix()+60)

	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sent := f.conn.Sent()
	if len(sent) != 1 || sent[0].Kind != channel.KindClientReady {
		t.Fatalf("sent %v, want one client-ready", f.sentKinds())
	}
	var ready channel.ClientReady
	if err := json.Unmarshal(sent[0].Data, &ready); err != nil {
		t.Fatalf("unmarshal client-ready: %v", err)
	}
	if ready.Token != "T1" {
		t.Fatalf("client-ready token = %q, want T1", ready.Token)
	}
}

func TestClientStoresIssuedTokenAndReportsReady(t *testing.T) {
	f := newClientFixture(t)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.push(t, channel.KindTokenIssued, channel.TokenIssued{
		Token:  "T2",
		Expiry: time.Now().Unix() + 300,
	})

	token, ok := f.client.tokens.Get()
	if !ok || token.Value != "T2" {
		t.Fatalf("stored token = %q, %v; want T2, true", token.Value, ok)
	}

	kinds := f.sentKinds()
	if len(kinds) != 2 || kinds[1] != channel.KindClientReady {
		t.Fatalf("sent %v, want request-token then client-ready", kinds)
	}
}

func TestClientReconnectWithoutTokenSurfacesAccessDenied(t *testing.T) {
	f := newClientFixture(t)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := len(f.conn.Sent())

	f.conn.TriggerReconnect()

	if f.notices.count() != 1 {
		t.Fatalf("got %d notices, want 1", f.notices.count())
	}
	f.notices.mu.Lock()
	err := f.notices.notices[0]
	f.notices.mu.Unlock()
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("notice = %v, want ErrAccessDenied", err)
	}
	if after := len(f.conn.Sent()); after != before {
		t.Fatalf("reconnect without token sent %d extra messages", after-before)
	}
}

func TestClientReconnectWithTokenResendsReady(t *testing.T) {
	f := newClientFixture(t)
	f.client.tokens.Store("T1", time.Now().Unix()+60)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.conn.TriggerReconnect()

	kinds := f.sentKinds()
	if len(kinds) != 2 || kinds[1] != channel.KindClientReady {
		t.Fatalf("sent %v, want client-ready twice", kinds)
	}
	if f.notices.count() != 0 {
		t.Fatalf("got %d notices, want none", f.notices.count())
	}
}

func TestClientConfigurationLoadsLanguage(t *testing.T) {
	tests := []struct {
		name     string
		language string
		want     string
	}{
		{"supported language", "da", "da"},
		{"unsupported falls back to baseline", "fr", BaselineLanguage},
		{"empty falls back to baseline", "", BaselineLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newClientFixture(t)
			if err := f.client.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			f.push(t, channel.KindConfiguration, channel.MachineConfiguration{
				ID:                   "machine-a",
				DefaultLanguage:      tt.language,
				InactivityTimeoutSec: 120,
			})

			f.client.mu.Lock()
			got := f.client.catalog.Language
			f.client.mu.Unlock()
			if got != tt.want {
				t.Fatalf("catalog language = %q, want %q", got, tt.want)
			}
			// Language fallback is a silent local recovery.
			if f.notices.count() != 0 {
				t.Fatalf("got %d notices, want none", f.notices.count())
			}
		})
	}
}

func TestClientConfigurationArmsIdleTimeout(t *testing.T) {
	f := newClientFixture(t)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.push(t, channel.KindConfiguration, channel.MachineConfiguration{
		ID:                   "machine-a",
		DefaultLanguage:      "en",
		InactivityTimeoutSec: 90,
	})

	f.client.idle.mu.Lock()
	timeout := f.client.idle.timeout
	armed := f.client.idle.timer != nil
	f.client.idle.mu.Unlock()

	if timeout != 90*time.Second {
		t.Fatalf("idle timeout = %v, want 90s", timeout)
	}
	if !armed {
		t.Fatal("idle countdown not armed after configuration")
	}
}

func TestClientStateUpdateReplacesSnapshot(t *testing.T) {
	f := newClientFixture(t)

	var (
		mu     sync.Mutex
		states []channel.MachineState
	)
	f.client.onState = func(s channel.MachineState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.push(t, channel.KindStateUpdate, channel.MachineState{
		Step:      "borrow",
		LoanItems: []channel.Item{{ID: "i-1", Title: "The Trial"}},
	})

	state := f.client.State()
	if state.Step != "borrow" || len(state.LoanItems) != 1 {
		t.Fatalf("state = %+v, want borrow step with one loan", state)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 1 {
		t.Fatalf("onState called %d times, want 1", len(states))
	}
}

func TestClientIdleDeadlineAtInitialStepSendsNothing(t *testing.T) {
	f := newClientFixture(t)
	f.client.tokens.Store("T1", time.Now().Unix()+60)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := len(f.conn.Sent())

	f.client.onIdleDeadline()

	if after := len(f.conn.Sent()); after != before {
		t.Fatal("idle fire at the initial step must not emit a reset")
	}
}

func TestClientIdleDeadlineEmitsSingleReset(t *testing.T) {
	f := newClientFixture(t)
	f.client.tokens.Store("T1", time.Now().Unix()+60)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.push(t, channel.KindStateUpdate, channel.MachineState{Step: "borrow"})
	before := len(f.conn.Sent())

	f.client.onIdleDeadline()

	sent := f.conn.Sent()
	if len(sent) != before+1 {
		t.Fatalf("idle fire sent %d messages, want 1", len(sent)-before)
	}
	if sent[len(sent)-1].Kind != channel.KindResetAction {
		t.Fatalf("idle fire sent %q, want %q", sent[len(sent)-1].Kind, channel.KindResetAction)
	}
}

func TestClientIdleDeadlineWithoutTokenSurfacesAccessDenied(t *testing.T) {
	f := newClientFixture(t)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.push(t, channel.KindStateUpdate, channel.MachineState{Step: "borrow"})
	before := len(f.conn.Sent())

	f.client.onIdleDeadline()

	if f.notices.count() != 1 {
		t.Fatalf("got %d notices, want 1", f.notices.count())
	}
	if after := len(f.conn.Sent()); after != before {
		t.Fatal("denied idle reset must not emit a message")
	}
}

func TestClientSendSurfacesAccessDenied(t *testing.T) {
	f := newClientFixture(t)
	if err := f.client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := f.client.Send(context.Background(), "status", nil)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Send() error = %v, want ErrAccessDenied", err)
	}
	if f.notices.count() != 1 {
		t.Fatalf("got %d notices, want 1", f.notices.count())
	}
}

// failingConn refuses registration for one kind, standing in for a
// transport whose subscription fails.
type failingConn struct {
	failKind channel.Kind
	err      error

	mu        sync.Mutex
	published int
}

func (c *failingConn) Publish(context.Context, channel.Kind, any) error {
	c.mu.Lock()
	c.published++
	c.mu.Unlock()
	return nil
}

func (c *failingConn) Handle(kind channel.Kind, _ channel.HandlerFunc) error {
	if kind == c.failKind {
		return c.err
	}
	return nil
}

func (c *failingConn) OnReconnect(func()) {}
func (c *failingConn) Close() error       { return nil }

func TestStartSurfacesHandlerRegistrationFailure(t *testing.T) {
	subErr := errors.New("subscription refused")
	conn := &failingConn{failKind: channel.KindTokenIssued, err: subErr}

	client, err := NewClient(conn, NewMemoryStorage(), Options{MachineID: "machine-a"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if err := client.Start(context.Background()); !errors.Is(err, subErr) {
		t.Fatalf("Start error = %v, want %v", err, subErr)
	}
	conn.mu.Lock()
	published := conn.published
	conn.mu.Unlock()
	if published != 0 {
		t.Fatalf("Start published %d messages after a registration failure", published)
	}
}
