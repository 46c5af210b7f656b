package stores

import (
	"context"
	"sync"
	"time"
)

type memoryOTPEntry struct {
	record   *OTPRecord
	deadline time.Time
}

// MemoryOTPStore keeps OTP records in process memory. It is only correct
// for single-instance deployments.
type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]memoryOTPEntry
	now     func() time.Time
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{
		entries: make(map[string]memoryOTPEntry),
		now:     time.Now,
	}
}

func (s *MemoryOTPStore) Get(_ context.Context, identity string) (*OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[identity]
	if !ok {
		return nil, ErrOTPNotFound
	}
	if !entry.deadline.IsZero() && s.now().After(entry.deadline) {
		delete(s.entries, identity)
		return nil, ErrOTPNotFound
	}

	return cloneOTPRecord(entry.record), nil
}

func (s *MemoryOTPStore) Set(_ context.Context, record *OTPRecord, ttl time.Duration) error {
	if record == nil || record.Identity == "" {
		return ErrOTPRecordInvalid
	}

	entry := memoryOTPEntry{record: cloneOTPRecord(record)}
	if ttl > 0 {
		entry.deadline = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[record.Identity] = entry
	s.mu.Unlock()

	return nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	delete(s.entries, identity)
	s.mu.Unlock()
	return nil
}

// Len reports the number of records held, including ones past their TTL
// that have not been touched since.
func (s *MemoryOTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
