package deadletter

import (
	"context"
	"sync"
)

// MemorySink collects records in memory. Intended for tests and
// single-process tooling.
type MemorySink struct {
	mu        sync.Mutex
	queued    []FailureRecord
	persisted []FailureRecord
	notified  []FailureRecord
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Enqueue implements Sink.
func (s *MemorySink) Enqueue(_ context.Context, rec FailureRecord) error {
	s.mu.Lock()
	s.queued = append(s.queued, rec)
	s.mu.Unlock()
	return nil
}

// Persist implements Sink.
func (s *MemorySink) Persist(_ context.Context, rec FailureRecord) error {
	s.mu.Lock()
	s.persisted = append(s.persisted, rec)
	s.mu.Unlock()
	return nil
}

// Notify implements Sink.
func (s *MemorySink) Notify(_ context.Context, rec FailureRecord) error {
	s.mu.Lock()
	s.notified = append(s.notified, rec)
	s.mu.Unlock()
	return nil
}

// Queued returns a copy of the queued records.
func (s *MemorySink) Queued() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailureRecord(nil), s.queued...)
}

// Persisted returns a copy of the persisted records.
func (s *MemorySink) Persisted() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailureRecord(nil), s.persisted...)
}

// Notified returns a copy of the notified records.
func (s *MemorySink) Notified() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailureRecord(nil), s.notified...)
}

// Ensure MemorySink implements Sink
var _ Sink = (*MemorySink)(nil)
