package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/schema"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Entry is a stored record.
type Entry struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	engine.Record
}

// Summary counts the verdicts of one run.
type Summary struct {
	Run    Run               `json:"run"`
	Pass   int               `json:"pass"`
	Fail   int               `json:"fail"`
	Errors int               `json:"errors"`
	ByOp   map[engine.Op]int `json:"by_op"`
}

// ReadRun returns a run's header.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var mode, started string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, mode, started_at FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.Name, &mode, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	run.Mode = dispatch.Mode(mode)
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// Runs returns every run, oldest first.
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, mode, started_at FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var mode, started string
		if err := rows.Scan(&run.ID, &run.Name, &mode, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Mode = dispatch.Mode(mode)
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRecords returns the records of a run ordered by seq.
// Returns an empty slice (not nil) if the run has no records.
func (s *Store) ReadRecords(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, op, event, listener_id, mode, status, payload, error, at
		FROM records
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return entries, nil
}

// ReadListener returns every record of one listener across runs.
func (s *Store) ReadListener(ctx context.Context, listenerID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.run_id, r.seq, r.op, r.event, r.listener_id, r.mode, r.status, r.payload, r.error, r.at
		FROM records r
		JOIN runs ON runs.id = r.run_id
		WHERE r.listener_id = ?
		ORDER BY runs.started_at ASC, r.run_id COLLATE BINARY ASC, r.seq ASC
	`, listenerID)
	if err != nil {
		return nil, fmt.Errorf("query listener records: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listener records: %w", err)
	}
	return entries, nil
}

// Summarize counts the verdicts and operations of a run.
func (s *Store) Summarize(ctx context.Context, runID string) (Summary, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return Summary{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT op, status, error != '' AS failed, COUNT(*)
		FROM records
		WHERE run_id = ?
		GROUP BY op, status, failed
	`, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize run: %w", err)
	}
	defer rows.Close()

	sum := Summary{Run: run, ByOp: make(map[engine.Op]int)}
	for rows.Next() {
		var op, status string
		var failed bool
		var n int
		if err := rows.Scan(&op, &status, &failed, &n); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		sum.ByOp[engine.Op(op)] += n
		switch schema.Status(status) {
		case schema.StatusPass:
			sum.Pass += n
		case schema.StatusFail:
			sum.Fail += n
		}
		if failed {
			sum.Errors += n
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary: %w", err)
	}
	return sum, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var op, mode, status, at string
	var payload sql.NullString
	err := row.Scan(&e.ID, &e.RunID, &e.Seq, &op, &e.Event, &e.ListenerID, &mode, &status, &payload, &e.Error, &at)
	if err != nil {
		return Entry{}, fmt.Errorf("scan record: %w", err)
	}
	e.Op = engine.Op(op)
	e.Mode = dispatch.Mode(mode)
	e.Status = schema.Status(status)
	if e.Payload, err = unmarshalPayload(payload); err != nil {
		return Entry{}, err
	}
	if e.At, err = parseTime(at); err != nil {
		return Entry{}, err
	}
	return e, nil
}
