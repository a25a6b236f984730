package memory

import (
	"sync"

	"github.com/aisafe-dev/aisafegate/internal/domain/usage"
)

// UsageStore implements usage.Tracker with per-identity counters held
// in memory. Counters survive for the life of the process only.
type UsageStore struct {
	mu      sync.RWMutex // guards the records map
	records map[string]*identityRecord
}

type identityRecord struct {
	mu  sync.Mutex
	rec usage.Record
}

// NewUsageStore creates an empty usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		records: make(map[string]*identityRecord),
	}
}

func (s *UsageStore) RecordRequest(identity string, tokens int64) {
	r := s.recordFor(identity)
	r.mu.Lock()
	r.rec.Requests++
	r.rec.TokensSeen += tokens
	r.mu.Unlock()
}

func (s *UsageStore) RecordBlocked(identity string) {
	r := s.recordFor(identity)
	r.mu.Lock()
	r.rec.Blocked++
	r.mu.Unlock()
}

func (s *UsageStore) RecordRedacted(identity string) {
	r := s.recordFor(identity)
	r.mu.Lock()
	r.rec.Redacted++
	r.mu.Unlock()
}

func (s *UsageStore) RecordRejected(identity string) {
	r := s.recordFor(identity)
	r.mu.Lock()
	r.rec.Rejected++
	r.mu.Unlock()
}

// Snapshot returns a copy of the identity's counters. Unknown identities
// yield a zero record.
func (s *UsageStore) Snapshot(identity string) usage.Record {
	s.mu.RLock()
	r, ok := s.records[identity]
	s.mu.RUnlock()
	if !ok {
		return usage.Record{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec
}

func (s *UsageStore) recordFor(identity string) *identityRecord {
	s.mu.RLock()
	r, ok := s.records[identity]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[identity]; ok {
		return r
	}
	r = &identityRecord{}
	s.records[identity] = r
	return r
}

var _ usage.Tracker = (*UsageStore)(nil)
