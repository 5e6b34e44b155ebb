package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// fakeCommands records Redis commands without a server.
type fakeCommands struct {
	lists     map[string][][]byte
	kv        map[string][]byte
	ttls      map[string]time.Duration
	published map[string][][]byte
	failing   error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		lists:     make(map[string][][]byte),
		kv:        make(map[string][]byte),
		ttls:      make(map[string]time.Duration),
		published: make(map[string][][]byte),
	}
}

func (f *fakeCommands) LPush(_ context.Context, key string, values ...any) error {
	if f.failing != nil {
		return f.failing
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.([]byte))
	}
	return nil
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if f.failing != nil {
		return f.failing
	}
	f.kv[key] = value.([]byte)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCommands) Publish(_ context.Context, channel string, message any) error {
	if f.failing != nil {
		return f.failing
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return nil
}

func TestNewRedisSink_Defaults(t *testing.T) {
	s := NewRedisSink(newFakeCommands(), RedisSinkConfig{})

	if s.config.QueueKey != "deadletter:queue" {
		t.Errorf("QueueKey = %q", s.config.QueueKey)
	}
	if s.config.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v, want 30 days", s.config.Retention)
	}
}

func TestRedisSink_Dispatch(t *testing.T) {
	fake := newFakeCommands()
	s := NewRedisSink(fake, RedisSinkConfig{})
	rec := NewRecord("u1", "transcribe", "submit", "Internal", errors.New("boom"), SeverityCritical)

	if err := Dispatch(context.Background(), s, rec); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got := len(fake.lists["deadletter:queue"]); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}

	var queued FailureRecord
	if err := json.Unmarshal(fake.lists["deadletter:queue"][0], &queued); err != nil {
		t.Fatalf("queued record not valid JSON: %v", err)
	}
	if queued.ErrorID != rec.ErrorID {
		t.Errorf("queued ErrorID = %q, want %q", queued.ErrorID, rec.ErrorID)
	}

	logKey := "deadletter:log:" + rec.ErrorID
	if _, ok := fake.kv[logKey]; !ok {
		t.Errorf("record not persisted under %q", logKey)
	}
	if fake.ttls[logKey] != 30*24*time.Hour {
		t.Errorf("persisted TTL = %v, want retention window", fake.ttls[logKey])
	}

	if got := len(fake.published["deadletter:alerts"]); got != 1 {
		t.Errorf("alerts published = %d, want 1 for critical severity", got)
	}
}

func TestRedisSink_ClientErrorSurfaced(t *testing.T) {
	fake := newFakeCommands()
	fake.failing = errors.New("connection refused")
	s := NewRedisSink(fake, RedisSinkConfig{})

	err := s.Enqueue(context.Background(), NewRecord("u1", "dep", "op", "Internal", nil, SeverityLow))
	if err == nil {
		t.Fatal("Enqueue() error = nil, want client error")
	}
}
