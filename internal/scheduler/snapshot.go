package scheduler

import (
	"sort"
)

// Snapshot returns a point-in-time view of the registry and recent
// delivery history, for the status endpoint.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Workers: s.cfg.Workers,
	}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
	}
	for id, e := range s.entries {
		info := EntryInfo{
			JobID:   id,
			Kind:    e.kind,
			Channel: e.job.Payload.Channel,
		}
		switch {
		case e.cronID != 0 && s.c != nil:
			info.Next = s.c.Entry(e.cronID).Next
		default:
			info.Next = e.fireAt
		}
		snap.Entries = append(snap.Entries, info)
	}
	s.mu.Unlock()

	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].JobID < snap.Entries[j].JobID
	})

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

// Registered reports whether a live trigger exists for id.
func (s *Service) Registered(id string) bool {
	s.mu.Lock()
	_, ok := s.entries[id]
	s.mu.Unlock()
	return ok
}
