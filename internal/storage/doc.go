// Package storage is the durable record of scheduled jobs.
//
// It currently supports:
//   - A single-document JSON file (atomic tmp+rename writes)
//   - SQLite (WAL mode, one writer)
package storage
