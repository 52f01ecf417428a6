// Package store keeps the latest state of every meter in memory.
//
// The id-to-record map is built once from the seeded fleet and never
// mutated afterwards, so lookups need no global lock. Each record carries its
// own RWMutex; an update rewrites all mutable fields of one record under its
// write lock, so readers never observe a half-applied sample. Concurrent
// updates to the same meter are serialized and the last one wins.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/furzing/leakWhisperer/internal/domain"
)

type record struct {
	mu    sync.RWMutex
	meter domain.Meter
}

// Store is the in-memory meter state store.
type Store struct {
	records map[string]*record
	ids     []string // sorted
	clock   clockwork.Clock
}

// New builds a store over a seeded fleet. Meter ids must be unique.
func New(meters []domain.Meter, clock clockwork.Clock) (*Store, error) {
	records := make(map[string]*record, len(meters))
	ids := make([]string, 0, len(meters))
	for _, m := range meters {
		if _, dup := records[m.MeterID]; dup {
			return nil, fmt.Errorf("duplicate meter id %q", m.MeterID)
		}
		records[m.MeterID] = &record{meter: m}
		ids = append(ids, m.MeterID)
	}
	sort.Strings(ids)
	return &Store{records: records, ids: ids, clock: clock}, nil
}

// Len returns the fixed fleet size.
func (s *Store) Len() int { return len(s.ids) }

// Get returns a copy of one meter's state.
func (s *Store) Get(id string) (domain.Meter, bool) {
	r, ok := s.records[id]
	if !ok {
		return domain.Meter{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meter, true
}

// Has reports whether id names a meter in the fleet.
func (s *Store) Has(id string) bool {
	_, ok := s.records[id]
	return ok
}

// All returns a copy of every meter in id order. Each record is read
// consistently; the list as a whole is not a point-in-time snapshot.
func (s *Store) All() []domain.Meter {
	out := make([]domain.Meter, len(s.ids))
	for i, id := range s.ids {
		r := s.records[id]
		r.mu.RLock()
		out[i] = r.meter
		r.mu.RUnlock()
	}
	return out
}

// ActiveLeaks counts meters currently in leak state.
func (s *Store) ActiveLeaks() int {
	var n int
	for _, r := range s.records {
		r.mu.RLock()
		if r.meter.Status == domain.StatusLeak {
			n++
		}
		r.mu.RUnlock()
	}
	return n
}

// Update applies one processed sample to a meter and returns the post-update
// state. Unknown ids fail with a not-found error; invalid updates are
// rejected without touching the record.
func (s *Store) Update(id string, u domain.MeterUpdate) (domain.Meter, error) {
	r, ok := s.records[id]
	if !ok {
		return domain.Meter{}, domain.NewError(domain.KindNotFound, fmt.Sprintf("meter %q not found", id), nil)
	}
	if err := u.Validate(); err != nil {
		return domain.Meter{}, fmt.Errorf("update meter %s: %w", id, err)
	}

	audio := u.AudioBase64
	now := s.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.meter.Status = u.Status
	r.meter.LastUpdate = now
	r.meter.FlowRateLPH = u.FlowRateLPH
	r.meter.Confidence = u.Confidence
	r.meter.AudioBase64 = &audio
	r.meter.Severity = u.Severity
	r.meter.Transcript = u.Transcript
	return r.meter, nil
}
