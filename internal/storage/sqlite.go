package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, cron, timezone, fire_at, created_at FROM jobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var (
			j               job.Job
			payload         string
			cron, tz        sql.NullString
			fireAt, created sql.NullString
		)
		if err := rows.Scan(&j.ID, &payload, &cron, &tz, &fireAt, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &j.Payload); err != nil {
			return nil, fmt.Errorf("%w: job %s: %v", ErrCorrupt, j.ID, err)
		}
		j.Trigger.Cron = cron.String
		j.Trigger.Timezone = tz.String
		if fireAt.Valid && fireAt.String != "" {
			t, err := time.Parse(time.RFC3339Nano, fireAt.String)
			if err != nil {
				return nil, fmt.Errorf("%w: job %s fire_at: %v", ErrCorrupt, j.ID, err)
			}
			j.Trigger.FireAt = t
		}
		if created.Valid && created.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, created.String); err == nil {
				j.CreatedAt = t
			}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Upsert(ctx context.Context, j job.Job) error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id required")
	}
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, payload, cron, timezone, fire_at, created_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   payload=excluded.payload, cron=excluded.cron,
		   timezone=excluded.timezone, fire_at=excluded.fire_at,
		   created_at=excluded.created_at`,
		j.ID, string(payload), nullStr(j.Trigger.Cron), nullStr(j.Trigger.Timezone),
		nullTime(j.Trigger.FireAt), nullTime(j.CreatedAt),
	)
	return err
}

func (s *sqliteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
