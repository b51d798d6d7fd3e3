package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

func testJob(id string) job.Job {
	return job.Job{
		ID:        id,
		Payload:   job.Payload{Channel: "sms", SMS: &job.SMSPayload{Number: "123", Message: "hi"}},
		Trigger:   job.Trigger{Cron: "*/5 * * * *"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.json")

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Upsert(ctx, testJob("a")); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := s.Upsert(ctx, testJob("b")); err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen and confirm only b survived.
	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	jobs, err := s2.LoadAll(ctx)
	if err != nil {
		t.Fatalf("loadall: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "b" {
		t.Fatalf("jobs after reopen = %+v, want only b", jobs)
	}
	if jobs[0].Payload.SMS == nil || jobs[0].Payload.SMS.Message != "hi" {
		t.Fatalf("payload did not survive round trip: %+v", jobs[0].Payload)
	}
}

func TestFileStoreUpsertReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	j := testJob("a")
	if err := s.Upsert(ctx, j); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	j.Payload.SMS.Message = "updated"
	if err := s.Upsert(ctx, j); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	jobs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("loadall: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Payload.SMS.Message != "updated" {
		t.Fatalf("jobs = %+v, want single updated record", jobs)
	}
}

func TestFileStoreCorruptFailsFast(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := Open(Config{Path: path}, logx.Nop())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("open corrupt file: err = %v, want ErrCorrupt", err)
	}
}

func TestFileStoreFirstRunCreatesDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "jobs.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("document not created on first run: %v", err)
	}
	jobs, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("loadall: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("fresh store not empty: %+v", jobs)
	}
}

func TestFileStoreClosedRejectsWrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()
	if err := s.Upsert(context.Background(), testJob("a")); !errors.Is(err, ErrClosed) {
		t.Fatalf("upsert after close: err = %v, want ErrClosed", err)
	}
	if _, err := s.LoadAll(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("loadall after close: err = %v, want ErrClosed", err)
	}
}

func TestFileStoreRemoveMissingIsNoop(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Remove(context.Background(), "ghost"); err != nil {
		t.Fatalf("remove missing id: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "etcd", Path: "x"}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
