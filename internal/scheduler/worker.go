package scheduler

import (
	"context"
	"time"

	logx "notifyd/pkg/logx"
)

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(t)
}

// enqueueLocked hands a task to the worker pool. Call with s.mu held.
func (s *Service) enqueueLocked(t task) {
	q := s.queue
	if q == nil {
		s.log.Debug("scheduler not running; dropping delivery", logx.String("job", t.jobID))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("delivery queue full; dropping",
			logx.String("job", t.jobID), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

// execOne performs a single delivery attempt. Failures are recorded
// and logged, never retried: a recurring job keeps its schedule and a
// one-time job is already gone from registry and store by now.
func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()

	s.mu.Lock()
	timeout := s.cfg.DeliveryTimeout
	s.mu.Unlock()

	runCtx := ctx
	var cancel func()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	err := s.deliver.Deliver(runCtx, t.payload)
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	item := HistoryItem{
		JobID:    t.jobID,
		Channel:  t.payload.Channel,
		Kind:     t.kind,
		Started:  start,
		Duration: dur,
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("delivery failed",
			logx.String("job", t.jobID), logx.String("channel", t.payload.Channel),
			logx.Duration("dur", dur), logx.Err(err))
	} else {
		s.log.Info("delivery ok",
			logx.String("job", t.jobID), logx.String("channel", t.payload.Channel),
			logx.Duration("dur", dur))
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}
