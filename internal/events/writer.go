package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Writer appends store mutations to the journal table. It satisfies
// store.Journal.
type Writer struct {
	DB        *sql.DB
	SessionID string
	Now       func() time.Time
	Timeout   time.Duration
}

type EventPayload map[string]any

// NewWriter returns a writer tagged with a fresh session id.
func NewWriter(db *sql.DB) Writer {
	return Writer{
		DB:        db,
		SessionID: uuid.NewString(),
		Now:       time.Now,
		Timeout:   5 * time.Second,
	}
}

func (w Writer) Append(evtType string, taskID *int, payload map[string]any) error {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.AppendContext(ctx, evtType, taskID, payload)
}

func (w Writer) AppendContext(ctx context.Context, evtType string, taskID *int, payload EventPayload) error {
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
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,task_id,session_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullableInt(taskID), w.SessionID, string(data))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", evtType, err)
	}
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
