package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notifyd/internal/job"
	"notifyd/internal/storage"
	logx "notifyd/pkg/logx"
)

// MissedPolicy decides what happens to a one-time job whose fire time
// elapsed while the process was down.
type MissedPolicy string

const (
	// MissedDrop skips the job entirely (never delivered).
	MissedDrop MissedPolicy = "drop"
	// MissedRun executes the job immediately at reconcile time.
	MissedRun MissedPolicy = "run"
)

// Config controls the scheduler service.
type Config struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
	HistorySize     int
	Timezone        string // IANA TZ used when a job carries none
	Missed          MissedPolicy
}

// Deliverer is the delivery capability the engine fires payloads into.
// The delivery registry satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, p job.Payload) error
}

// entry is a registry record: one live trigger handle per job id.
// stop() is uniform across recurring (cron entry removal) and one-time
// (timer stop) handles so cancellation never picks the wrong primitive.
type entry struct {
	job  job.Job
	kind job.TriggerKind
	stop func()

	// recurring only: the cron entry backing this registry record.
	cronID cron.EntryID
	// one-time only: the absolute instant the timer is armed for.
	fireAt time.Time
}

// task is one delivery attempt handed to the worker pool.
type task struct {
	jobID   string
	kind    job.TriggerKind
	payload job.Payload
}

// HistoryItem records one completed delivery attempt.
type HistoryItem struct {
	JobID    string
	Channel  string
	Kind     job.TriggerKind
	Started  time.Time
	Duration time.Duration
	Error    string
}

// EntryInfo is a read-only registry snapshot row.
type EntryInfo struct {
	JobID   string
	Kind    job.TriggerKind
	Channel string
	Next    time.Time
}

// Snapshot is the observable runtime state.
type Snapshot struct {
	Timezone string
	Workers  int
	QueueLen int
	Entries  []EntryInfo
	History  []HistoryItem
}

// Service owns the in-memory registry and the cron/timer runtime.
//
// Locking discipline: s.mu covers the registry, the cron runner and the
// store persist that belongs to the same operation, so create, cancel,
// fire-completion and reconcile never interleave destructively.
// Delivery itself runs on the worker pool, never under s.mu.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	loc     *time.Location
	store   storage.Store
	deliver Deliverer

	parser  cron.Parser
	c       *cron.Cron
	entries map[string]*entry
	// ver kills stale one-time callbacks after replace/cancel.
	ver map[string]uint64

	queue    chan task
	stopCh   chan struct{}
	runCtx   context.Context
	runStop  context.CancelFunc
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}
