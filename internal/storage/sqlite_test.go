package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	s, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	once := job.Job{
		ID:        "one",
		Payload:   job.Payload{Channel: "email", Email: &job.EmailPayload{To: []string{"a@example.com"}, Subject: "s", Body: "b"}},
		Trigger:   job.Trigger{FireAt: time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	rec := job.Job{
		ID:      "rec",
		Payload: job.Payload{Channel: "sms", SMS: &job.SMSPayload{Number: "123", Message: "m"}},
		Trigger: job.Trigger{Cron: "0 9 * * *", Timezone: "Asia/Kolkata"},
	}
	if err := s.Upsert(ctx, once); err != nil {
		t.Fatalf("upsert once: %v", err)
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert rec: %v", err)
	}

	jobs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("loadall: %v", err)
	}
	byID := map[string]job.Job{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	got, ok := byID["one"]
	if !ok {
		t.Fatalf("one-time job missing from %v", jobs)
	}
	if !got.Trigger.FireAt.Equal(once.Trigger.FireAt) {
		t.Fatalf("fire_at = %v, want %v", got.Trigger.FireAt, once.Trigger.FireAt)
	}
	if got.Payload.Email == nil || got.Payload.Email.To[0] != "a@example.com" {
		t.Fatalf("email payload did not survive: %+v", got.Payload)
	}
	if r := byID["rec"]; r.Trigger.Cron != "0 9 * * *" || r.Trigger.Timezone != "Asia/Kolkata" {
		t.Fatalf("recurring trigger did not survive: %+v", byID["rec"].Trigger)
	}

	if err := s.Remove(ctx, "one"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	jobs, err = s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("loadall after remove: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "rec" {
		t.Fatalf("jobs after remove = %+v, want only rec", jobs)
	}
}

func TestSQLiteUpsertReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	j := job.Job{
		ID:      "a",
		Payload: job.Payload{Channel: "sms", SMS: &job.SMSPayload{Number: "1", Message: "first"}},
		Trigger: job.Trigger{Cron: "* * * * *"},
	}
	if err := s.Upsert(ctx, j); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	j.Payload.SMS.Message = "second"
	if err := s.Upsert(ctx, j); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	jobs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("loadall: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Payload.SMS.Message != "second" {
		t.Fatalf("jobs = %+v, want single replaced record", jobs)
	}
}
