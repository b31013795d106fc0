package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends one log record per state change, inside the same transaction
// as the change itself. The log is append-only and sufficient to reconstruct
// every entity's status by replay.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type Record struct {
	Type           string
	EntityKind     string
	EntityID       string
	PreviousStatus string
	NewStatus      string
	ActorID        string
	Payload        EventPayload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if rec.Payload == nil {
		rec.Payload = EventPayload{}
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,previous_status,new_status,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		ts, rec.Type, rec.EntityKind, rec.EntityID, nullable(rec.PreviousStatus), nullable(rec.NewStatus), rec.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
