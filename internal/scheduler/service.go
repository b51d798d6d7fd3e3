package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"notifyd/internal/job"
	"notifyd/internal/storage"
	logx "notifyd/pkg/logx"
)

func New(cfg Config, store storage.Store, deliver Deliverer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if cfg.Missed != MissedRun {
		cfg.Missed = MissedDrop
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		store:   store,
		deliver: deliver,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]*entry{},
		ver:     map[string]uint64{},
	}
}

// Start brings up the cron runner and the worker pool. It must run
// before Reconcile; the registry stays empty until then.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runStop = context.WithCancel(ctx)
	s.queue = make(chan task, s.cfg.QueueSize)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// Local captures prevent races if fields are swapped during Stop().
	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", s.cfg.Workers), logx.String("tz", loc.String()))
}

// Stop halts the cron runner, stops every live timer and drains the
// worker pool. Registry entries are discarded; the store is the only
// thing that survives a restart.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runStop
	c := s.c
	s.c = nil
	s.stopCh = nil
	s.runStop = nil
	s.queue = nil

	for id, e := range s.entries {
		e.stop()
		delete(s.entries, id)
		s.ver[id]++
	}
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for workers")
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid default timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Store guards shared by engine paths; a nil store (tests) is a no-op.

func (s *Service) storeUpsert(ctx context.Context, j job.Job) error {
	if s.store == nil {
		return nil
	}
	return s.store.Upsert(ctx, j)
}

func (s *Service) storeRemove(ctx context.Context, id string) error {
	if s.store == nil {
		return nil
	}
	return s.store.Remove(ctx, id)
}
