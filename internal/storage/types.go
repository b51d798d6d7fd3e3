package storage

import (
	"errors"
	"time"
)

var (
	// ErrCorrupt means the durable medium exists but cannot be parsed.
	// Open() returns it so the process can fail fast instead of silently
	// running with zero jobs.
	ErrCorrupt = errors.New("storage corrupt")

	ErrClosed = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": single JSON document, atomic tmp+rename writes
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
