// Package audit records every client message that can change machine
// state, giving staff a queryable trail of kiosk activity.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kioskd/pkg/channel"
	"kioskd/pkg/db"
)

// Ingestor subscribes to the kiosk channel and writes one audit row
// per client-to-server message. Tokens are redacted before storage.
type Ingestor struct {
	pool     *pgxpool.Pool
	listener channel.Listener
	now      func() time.Time
}

// NewIngestor constructs an Ingestor for the provided dependencies.
func NewIngestor(pool *pgxpool.Pool, listener channel.Listener) (*Ingestor, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if listener == nil {
		return nil, errors.New("channel listener is required")
	}
	return &Ingestor{pool: pool, listener: listener, now: time.Now}, nil
}

// Start registers handlers for the auditable message kinds. They run
// until the listener is closed.
func (i *Ingestor) Start(ctx context.Context) error {
	if i == nil {
		return errors.New("nil ingestor")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	for _, kind := range []channel.Kind{
		channel.KindRequestToken,
		channel.KindClientReady,
		channel.KindAction,
		channel.KindResetAction,
	} {
		kind := kind
		err := i.listener.Handle(kind, func(msgCtx context.Context, machineID string, data []byte) error {
			return i.record(msgCtx, machineID, kind, data)
		})
		if err != nil {
			return fmt.Errorf("register %s handler: %w", kind, err)
		}
	}
	return nil
}

func (i *Ingestor) record(ctx context.Context, machineID string, kind channel.Kind, data []byte) error {
	entry, err := entryFrom(machineID, kind, data)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, i.pool, `
INSERT INTO action_audit (machine_id, kind, action, payload, at)
VALUES ($1, $2, $3, $4::jsonb, $5)
`, entry.MachineID, entry.Kind, entry.Action, payload, i.now().UTC())
	return err
}

// Entry is the storable form of one audited message.
type Entry struct {
	MachineID string
	Kind      string
	Action    string
	Payload   map[string]any
}

// entryFrom flattens a raw message into an audit entry. The session
// token never reaches the database.
func entryFrom(machineID string, kind channel.Kind, data []byte) (Entry, error) {
	entry := Entry{
		MachineID: machineID,
		Kind:      string(kind),
		Payload:   map[string]any{},
	}

	switch kind {
	case channel.KindAction:
		var msg channel.Action
		if err := json.Unmarshal(data, &msg); err != nil {
			return Entry{}, err
		}
		entry.Action = msg.Name
		if msg.Data != nil {
			entry.Payload = msg.Data
		}
	case channel.KindResetAction:
		entry.Action = "reset"
	case channel.KindRequestToken, channel.KindClientReady:
		// Identity-only messages carry nothing worth storing beyond
		// the kind itself.
	default:
		return Entry{}, errors.New("unauditable kind " + string(kind))
	}

	return entry, nil
}
