package report

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
)

// Run is one journaled harness session.
type Run struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Mode      dispatch.Mode `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
}

// StartRun inserts a new run.
func (s *Store) StartRun(ctx context.Context, name string, mode dispatch.Mode, at time.Time) (Run, error) {
	run := Run{ID: s.ids.Generate(), Name: name, Mode: mode, StartedAt: at.UTC()}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, mode, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Name, string(run.Mode), formatTime(run.StartedAt))
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// WriteRecord inserts an engine record into a run.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency: a record
// delivered twice is stored once.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteRecord(ctx context.Context, runID string, rec engine.Record) error {
	payload, err := marshalPayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records
		(id, run_id, seq, op, event, listener_id, mode, status, payload, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		s.ids.Generate(),
		runID,
		rec.Seq,
		string(rec.Op),
		rec.Event,
		rec.ListenerID,
		string(rec.Mode),
		string(rec.Status),
		payload,
		rec.Error,
		formatTime(rec.At),
	)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
