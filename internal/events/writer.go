package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded for a run.
const (
	RunStarted  = "run.started"
	RunState    = "run.state"
	RunFinished = "run.finished"
	RunFailed   = "run.failed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts an event inside tx, or directly when tx is nil.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, runID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const q = `INSERT INTO events(ts,type,run_id,actor_id,payload_json) VALUES (?,?,?,?,?)`
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, ts, evtType, nullable(runID), actorID, string(data))
	} else {
		_, err = w.DB.ExecContext(ctx, q, ts, evtType, nullable(runID), actorID, string(data))
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
