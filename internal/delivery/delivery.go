package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

var ErrUnknownChannel = errors.New("unknown delivery channel")

// Deliverer sends one payload over one channel. Implementations own
// their transport-level timeouts and retry policy; the scheduler only
// records success or failure.
type Deliverer interface {
	Channel() string
	Deliver(ctx context.Context, p job.Payload) error
}

// Registry dispatches payloads to the Deliverer registered for their
// channel. It implements the scheduler's delivery capability.
type Registry struct {
	log logx.Logger

	mu sync.RWMutex
	m  map[string]Deliverer
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, m: map[string]Deliverer{}}
}

func (r *Registry) Register(d Deliverer) {
	r.mu.Lock()
	r.m[d.Channel()] = d
	r.mu.Unlock()
	r.log.Debug("delivery channel registered", logx.String("channel", d.Channel()))
}

func (r *Registry) Lookup(channel string) (Deliverer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.m[channel]
	return d, ok
}

// Channels returns the registered channel names, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for c := range r.m {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Deliver routes the payload to its channel's Deliverer.
func (r *Registry) Deliver(ctx context.Context, p job.Payload) error {
	d, ok := r.Lookup(p.Channel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, p.Channel)
	}
	return d.Deliver(ctx, p)
}
