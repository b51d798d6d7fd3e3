package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// The whole job set lives in one JSON document. Every mutation rewrites
// the document to <path>.tmp and renames it over the original, so a
// reader can never observe a partial write.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	jobs   map[string]job.Job
	closed bool
}

// fileDoc is the on-disk shape, keyed by job id.
type fileDoc struct {
	Jobs map[string]job.Job `json:"jobs"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, jobs: map[string]job.Job{}}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run: create an empty, well-formed document so later
		// reads never confuse "missing" with "corrupt".
		if err := s.writeLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		var doc fileDoc
		if err := json.Unmarshal(b, &doc); err != nil {
			// Refusing to serve beats silently dropping every job.
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		if doc.Jobs != nil {
			s.jobs = doc.Jobs
		}
	}

	log.Debug("file store opened", logx.String("path", path), logx.Int("jobs", len(s.jobs)))
	return s, nil
}

func (s *fileStore) LoadAll(ctx context.Context) ([]job.Job, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *fileStore) Upsert(ctx context.Context, j job.Job) error {
	_ = ctx
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.jobs[j.ID]
	s.jobs[j.ID] = j
	if err := s.writeLocked(); err != nil {
		// Keep memory and disk consistent on failure.
		if had {
			s.jobs[j.ID] = prev
		} else {
			delete(s.jobs, j.ID)
		}
		return err
	}
	return nil
}

func (s *fileStore) Remove(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.jobs[id]
	if !had {
		return nil
	}
	delete(s.jobs, id)
	if err := s.writeLocked(); err != nil {
		s.jobs[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeLocked persists the document atomically. Call with s.mu held.
func (s *fileStore) writeLocked() error {
	b, err := json.MarshalIndent(fileDoc{Jobs: s.jobs}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
