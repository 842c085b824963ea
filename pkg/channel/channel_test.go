package channel

import (
	"context"
	"encoding/json"
	"testing"
)

func TestSubjectLayout(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"client action", clientSubject("branch-east-1", KindAction), "kiosk.branch-east-1.c2s.action"},
		{"client request token", clientSubject("m1", KindRequestToken), "kiosk.m1.c2s.request-token"},
		{"server state update", serverSubject("m1", KindStateUpdate), "kiosk.m1.s2c.state-update"},
		{"server configuration", serverSubject("m1", KindConfiguration), "kiosk.m1.s2c.configuration"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("subject = %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestMemoryNetworkRoundTrip(t *testing.T) {
	net := NewMemoryNetwork()
	kiosk := net.Kiosk("m1")
	ctx := context.Background()

	var engineSaw []string
	net.Handle(KindAction, func(_ context.Context, machineID string, data []byte) error {
		var msg Action
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		engineSaw = append(engineSaw, machineID+"/"+msg.Name)
		return nil
	})

	var kioskSaw []string
	kiosk.Handle(KindStateUpdate, func(_ context.Context, data []byte) error {
		var msg MachineState
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		kioskSaw = append(kioskSaw, msg.Step)
		return nil
	})

	if err := kiosk.Publish(ctx, KindAction, Action{Name: "status"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := net.PublishTo(ctx, "m1", KindStateUpdate, MachineState{Step: "status"}); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	if len(engineSaw) != 1 || engineSaw[0] != "m1/status" {
		t.Fatalf("engine saw %v", engineSaw)
	}
	if len(kioskSaw) != 1 || kioskSaw[0] != "status" {
		t.Fatalf("kiosk saw %v", kioskSaw)
	}
}

func TestMemoryNetworkIsolatesMachines(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.Kiosk("machine-a")
	b := net.Kiosk("machine-b")
	ctx := context.Background()

	var delivered []string
	for _, conn := range []*MemoryConn{a, b} {
		conn := conn
		conn.Handle(KindConfiguration, func(context.Context, []byte) error {
			delivered = append(delivered, conn.machineID)
			return nil
		})
	}

	if err := net.PublishTo(ctx, "machine-b", KindConfiguration, MachineConfiguration{ID: "machine-b"}); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "machine-b" {
		t.Fatalf("delivered to %v, want machine-b only", delivered)
	}
}

func TestPublishToUnknownMachine(t *testing.T) {
	net := NewMemoryNetwork()
	if err := net.PublishTo(context.Background(), "ghost", KindStateUpdate, MachineState{}); err == nil {
		t.Fatal("expected an error for an unconnected machine")
	}
}

func TestClosedConnRefusesPublish(t *testing.T) {
	net := NewMemoryNetwork()
	kiosk := net.Kiosk("m1")
	if err := kiosk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := kiosk.Publish(context.Background(), KindAction, Action{Name: "status"}); err == nil {
		t.Fatal("expected an error after Close")
	}
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("encode(nil) = %q", data)
	}
}
