// Package engine implements the event invocation engine.
//
// The engine registers listeners for Firebolt events through one of two
// dispatch strategies, keeps the latest notification delivered to each
// listener, validates payloads against the event's result schema, and tears
// listeners down individually or in bulk.
//
// ARCHITECTURE:
//
// Registry:
// A map from listener id to listener, guarded by a mutex. Entries are added
// by a successful registration and removed only by teardown.
//
// Mailboxes:
// Each listener owns a single-slot mailbox. Notification callbacks overwrite
// the slot atomically; retrieval reads it without consuming it. The mailbox
// exists before the listen call is issued so a notification racing the
// acknowledgement is not lost.
//
// Mode:
// The dispatch mode (SDK or Transport) comes from a ModeSource and is read
// once at the start of every registration and teardown.
//
// Records:
// Every operation emits a Record to the configured Recorder. Recorders
// include the SQLite journal, the Prometheus collector and MemoryRecorder.
package engine
