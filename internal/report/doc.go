// Package report journals engine records to SQLite.
//
// A journal is a set of runs. Each run is one harness session (a CLI
// invocation, a server lifetime or a scenario) and holds the records the
// engine emitted during it, ordered by the engine's sequence number.
//
// The database uses WAL mode and a single connection; all writes go through
// one *sql.DB so SQLite never sees concurrent writers.
package report
