package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

var (
	ErrNotStarted = errors.New("scheduler not started")
)

// Create validates, registers and persists a job, returning it with
// the resolved id. Reusing an existing id replaces the previous job:
// its handle is stopped before the new one is armed, so the old
// trigger can never fire again.
//
// A one-time job whose fire time already passed is silently dropped:
// not registered, not persisted, not an error.
func (s *Service) Create(ctx context.Context, j job.Job) (job.Job, error) {
	if strings.TrimSpace(j.ID) == "" {
		j.ID = "job-" + uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if err := j.Validate(); err != nil {
		return job.Job{}, err
	}
	kind, err := j.Trigger.Kind()
	if err != nil {
		return job.Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return job.Job{}, ErrNotStarted
	}

	switch kind {
	case job.KindRecurring:
		if err := s.scheduleRecurringLocked(j); err != nil {
			return job.Job{}, err
		}
	case job.KindOneTime:
		delay := time.Until(j.Trigger.FireAt)
		if delay <= 0 {
			s.log.Info("one-time job already elapsed; dropped",
				logx.String("job", j.ID), logx.Time("fire_at", j.Trigger.FireAt))
			return j, nil
		}
		s.scheduleOneTimeLocked(j, delay)
	}

	if err := s.storeUpsert(ctx, j); err != nil {
		// Roll back the registry mutation so a failed persist never
		// leaves a live timer for a job the store knows nothing about.
		s.stopEntryLocked(j.ID)
		return job.Job{}, fmt.Errorf("persist job %s: %w", j.ID, err)
	}
	s.log.Info("job scheduled",
		logx.String("job", j.ID), logx.String("kind", string(kind)),
		logx.String("channel", j.Payload.Channel))
	return j, nil
}

// Cancel deletes the job's durable record and stops its live trigger.
// It reports false when no registry entry exists; the store is left
// untouched in that case. The store write goes first: a failed remove
// keeps the registry entry alive, so the caller can retry the cancel
// instead of being left with a persisted job that has no handle.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	if err := s.storeRemove(ctx, id); err != nil {
		return true, fmt.Errorf("remove job %s: %w", id, err)
	}
	s.stopEntryLocked(id)
	s.log.Info("job cancelled", logx.String("job", id))
	return true, nil
}

// List returns the persisted job set. The registry is deliberately
// invisible here: the store is the source of truth callers see.
func (s *Service) List(ctx context.Context) ([]job.Job, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.LoadAll(ctx)
}

// Reconcile rebuilds the registry from a persisted job set. Called
// once at startup before external requests are accepted; calling it
// again with the same input replaces entries by id rather than
// duplicating them.
func (s *Service) Reconcile(ctx context.Context, jobs []job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}

	var registered, dropped, ran int
	for _, j := range jobs {
		kind, err := j.Trigger.Kind()
		if err != nil {
			s.log.Warn("persisted job has invalid trigger; skipped",
				logx.String("job", j.ID), logx.Err(err))
			continue
		}
		switch kind {
		case job.KindRecurring:
			if err := s.scheduleRecurringLocked(j); err != nil {
				s.log.Warn("persisted job failed to schedule; skipped",
					logx.String("job", j.ID), logx.Err(err))
				continue
			}
			registered++
		case job.KindOneTime:
			delay := time.Until(j.Trigger.FireAt)
			if delay <= 0 {
				// Elapsed during the outage. The record is removed either
				// way; the missed policy decides whether it still runs.
				if err := s.storeRemove(ctx, j.ID); err != nil {
					s.log.Warn("elapsed job store removal failed",
						logx.String("job", j.ID), logx.Err(err))
				}
				if s.cfg.Missed == MissedRun {
					s.enqueueLocked(task{jobID: j.ID, kind: kind, payload: j.Payload})
					ran++
					s.log.Info("missed one-time job running now",
						logx.String("job", j.ID), logx.Time("fire_at", j.Trigger.FireAt))
				} else {
					dropped++
					s.log.Warn("missed one-time job dropped",
						logx.String("job", j.ID), logx.Time("fire_at", j.Trigger.FireAt))
				}
				continue
			}
			s.scheduleOneTimeLocked(j, delay)
			registered++
		}
	}
	s.log.Info("reconcile complete",
		logx.Int("registered", registered), logx.Int("dropped", dropped), logx.Int("ran", ran))
	return nil
}

// scheduleRecurringLocked validates the cron expression and timezone,
// then arms (or replaces) the recurring trigger. Call with s.mu held
// and s.c non-nil.
func (s *Service) scheduleRecurringLocked(j job.Job) error {
	spec := strings.TrimSpace(j.Trigger.Cron)
	tz := strings.TrimSpace(j.Trigger.Timezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", job.ErrInvalid, tz)
		}
		// CRON_TZ only applies to field specs. Descriptor specs
		// (@hourly, @every ...) would silently run in the scheduler
		// location instead, so the combination is rejected.
		if strings.HasPrefix(spec, "@") {
			return fmt.Errorf("%w: timezone %q cannot apply to descriptor spec %q", job.ErrInvalid, tz, spec)
		}
		if strings.HasPrefix(spec, "TZ=") || strings.HasPrefix(spec, "CRON_TZ=") {
			return fmt.Errorf("%w: cron spec %q already carries a timezone", job.ErrInvalid, spec)
		}
		spec = "CRON_TZ=" + tz + " " + spec
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("%w: malformed cron %q: %v", job.ErrInvalid, j.Trigger.Cron, err)
	}

	s.stopEntryLocked(j.ID)

	id := j.ID
	payload := j.Payload
	eid, err := s.c.AddFunc(spec, func() {
		s.enqueue(task{jobID: id, kind: job.KindRecurring, payload: payload})
	})
	if err != nil {
		return fmt.Errorf("%w: cron register %q: %v", job.ErrInvalid, j.Trigger.Cron, err)
	}

	c := s.c
	s.entries[id] = &entry{
		job:    j,
		kind:   job.KindRecurring,
		cronID: eid,
		stop:   func() { c.Remove(eid) },
	}
	return nil
}

// scheduleOneTimeLocked arms (or replaces) a single-fire timer. Call
// with s.mu held and delay > 0.
func (s *Service) scheduleOneTimeLocked(j job.Job, delay time.Duration) {
	s.stopEntryLocked(j.ID)

	id := j.ID
	s.ver[id]++
	v := s.ver[id]
	timer := time.AfterFunc(delay, func() { s.fireOnce(id, v) })
	s.entries[id] = &entry{
		job:    j,
		kind:   job.KindOneTime,
		stop:   func() { timer.Stop() },
		fireAt: j.Trigger.FireAt,
	}
}

// fireOnce runs on the timer goroutine when a one-time trigger
// elapses. The version check makes callbacks from replaced or
// cancelled timers no-ops, closing the fire-vs-cancel race.
func (s *Service) fireOnce(id string, v uint64) {
	s.mu.Lock()
	if s.ver[id] != v {
		s.mu.Unlock()
		return
	}
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	s.ver[id]++
	// The job's lifecycle terminates on firing regardless of delivery
	// outcome, so the durable record goes first. A crash between here
	// and the delivery attempt drops the send rather than doubling it.
	if err := s.storeRemove(context.Background(), id); err != nil {
		s.log.Warn("one-time job store removal failed", logx.String("job", id), logx.Err(err))
	}
	payload := e.job.Payload
	s.mu.Unlock()

	s.enqueue(task{jobID: id, kind: job.KindOneTime, payload: payload})
}

// stopEntryLocked stops and removes a registry entry if present, and
// bumps the id's version so any in-flight timer callback is ignored.
// Call with s.mu held.
func (s *Service) stopEntryLocked(id string) {
	if e, ok := s.entries[id]; ok {
		e.stop()
		delete(s.entries, id)
	}
	s.ver[id]++
}
