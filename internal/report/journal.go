package report

import (
	"context"
	"log/slog"

	"github.com/roach88/fca/internal/engine"
)

// Journal writes the records of one run. It implements engine.Recorder.
//
// Journal writes synchronously; wrap it in engine.NewAsyncRecorder to keep
// SQLite latency off notification callbacks.
type Journal struct {
	store *Store
	run   Run
}

// Journal returns a recorder bound to run.
func (s *Store) Journal(run Run) *Journal {
	return &Journal{store: s, run: run}
}

// Run returns the run being written.
func (j *Journal) Run() Run {
	return j.run
}

// Record implements engine.Recorder. Write failures are logged, not
// returned: a journal problem must not change engine results.
func (j *Journal) Record(rec engine.Record) {
	if err := j.store.WriteRecord(context.Background(), j.run.ID, rec); err != nil {
		slog.Error("journal write failed",
			"run_id", j.run.ID,
			"seq", rec.Seq,
			"op", rec.Op,
			"error", err,
		)
	}
}
