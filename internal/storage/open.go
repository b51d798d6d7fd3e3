package storage

import (
	"context"
	"errors"
	"strings"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

// Store is the durable record of all jobs. It is the single source of
// truth; the scheduler registry is a rebuildable cache on top of it.
//
// Every write must leave the medium fully parseable even if the process
// dies right after the call returns.
type Store interface {
	LoadAll(ctx context.Context) ([]job.Job, error)
	Upsert(ctx context.Context, j job.Job) error
	Remove(ctx context.Context, id string) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
