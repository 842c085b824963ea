package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"kioskd/pkg/channel"
)

func TestEntryFrom(t *testing.T) {
	tests := []struct {
		name    string
		kind    channel.Kind
		payload any
		want    Entry
		wantErr bool
	}{
		{
			name: "action with data",
			kind: channel.KindAction,
			payload: channel.Action{
				Token: "secret",
				Name:  "checkout-item",
				Data:  map[string]any{"item_id": "b1"},
			},
			want: Entry{
				MachineID: "machine-a",
				Kind:      "action",
				Action:    "checkout-item",
				Payload:   map[string]any{"item_id": "b1"},
			},
		},
		{
			name:    "action without data",
			kind:    channel.KindAction,
			payload: channel.Action{Token: "secret", Name: "finish"},
			want: Entry{
				MachineID: "machine-a",
				Kind:      "action",
				Action:    "finish",
				Payload:   map[string]any{},
			},
		},
		{
			name:    "reset action",
			kind:    channel.KindResetAction,
			payload: channel.ResetAction{Token: "secret"},
			want: Entry{
				MachineID: "machine-a",
				Kind:      "reset-action",
				Action:    "reset",
				Payload:   map[string]any{},
			},
		},
		{
			name:    "request token",
			kind:    channel.KindRequestToken,
			payload: channel.RequestToken{MachineID: "machine-a"},
			want: Entry{
				MachineID: "machine-a",
				Kind:      "request-token",
				Payload:   map[string]any{},
			},
		},
		{
			name:    "client ready",
			kind:    channel.KindClientReady,
			payload: channel.ClientReady{Token: "secret"},
			want: Entry{
				MachineID: "machine-a",
				Kind:      "client-ready",
				Payload:   map[string]any{},
			},
		},
		{
			name:    "server kind is not auditable",
			kind:    channel.KindStateUpdate,
			payload: channel.MachineState{},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.payload)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}

			entry, err := entryFrom("machine-a", tc.kind, data)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("entryFrom: %v", err)
			}

			if entry.MachineID != tc.want.MachineID ||
				entry.Kind != tc.want.Kind ||
				entry.Action != tc.want.Action {
				t.Fatalf("entry = %+v, want %+v", entry, tc.want)
			}
			if len(entry.Payload) != len(tc.want.Payload) {
				t.Fatalf("payload = %v, want %v", entry.Payload, tc.want.Payload)
			}
			for key, want := range tc.want.Payload {
				if got := entry.Payload[key]; got != want {
					t.Fatalf("payload[%q] = %v, want %v", key, got, want)
				}
			}
		})
	}
}

func TestEntryFromRejectsGarbage(t *testing.T) {
	if _, err := entryFrom("machine-a", channel.KindAction, []byte("{not json")); err == nil {
		t.Fatal("expected a decode error")
	}
}

// failingListener refuses registration for one kind, standing in for a
// transport whose subscription fails.
type failingListener struct {
	failKind channel.Kind
	err      error
}

func (l *failingListener) Handle(kind channel.Kind, _ channel.EngineHandlerFunc) error {
	if kind == l.failKind {
		return l.err
	}
	return nil
}

func (l *failingListener) PublishTo(context.Context, string, channel.Kind, any) error { return nil }
func (l *failingListener) Close() error                                               { return nil }

func TestStartSurfacesHandlerRegistrationFailure(t *testing.T) {
	subErr := errors.New("subscription refused")
	listener := &failingListener{failKind: channel.KindResetAction, err: subErr}

	ingestor, err := NewIngestor(&pgxpool.Pool{}, listener)
	if err != nil {
		t.Fatalf("NewIngestor: %v", err)
	}
	if err := ingestor.Start(context.Background()); !errors.Is(err, subErr) {
		t.Fatalf("Start error = %v, want %v", err, subErr)
	}
}
