// Package ingest implements the Source capability: pollable byte-stream
// producers that frame raw bytes into LogLine records.
package ingest

import (
	"context"
	"time"
)

// LogLine is a raw framed record: exactly the bytes of one complete record,
// where it came from, and when it was ingested. It is never mutated after
// creation.
type LogLine struct {
	Content   string
	Source    string
	Timestamp time.Time
}

// Source is a pollable byte-stream producer that yields LogLines one at a
// time, with an explicit open/close lifecycle. ReadLine must block until a
// full record is framed, the stream ends (io.EOF), or the transport fails.
type Source interface {
	// Init acquires the underlying reader (opens a file, dials a socket).
	// ReadLine before a successful Init fails with SourceNotInitialized;
	// Close before Init is a no-op that returns nil.
	Init(ctx context.Context) error

	// ReadLine returns the next complete record. It returns io.EOF when the
	// stream ends cleanly.
	ReadLine(ctx context.Context) (LogLine, error)

	// Close releases the underlying reader and drops any partial buffer.
	// Safe to call more than once.
	Close() error

	// Label identifies this source for logging and metrics, e.g. a file
	// path or "network:host:port".
	Label() string
}
