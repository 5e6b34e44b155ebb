package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kmorrisey/gatekeep/cache"
	"github.com/kmorrisey/gatekeep/quota"
)

type unreachableStore struct{}

func (s *unreachableStore) ConditionalIncrement(ctx context.Context, key quota.BucketKey, limits quota.Limits, operation string) (quota.UsageRecord, bool, error) {
	return quota.UsageRecord{}, false, errors.New("connection refused")
}

func (s *unreachableStore) Get(ctx context.Context, key quota.BucketKey) (quota.UsageRecord, error) {
	return quota.UsageRecord{}, errors.New("connection refused")
}

func TestStoreChecker_Healthy(t *testing.T) {
	checker := NewStoreChecker("usage-store", quota.NewMemoryStore())

	if checker.Name() != "usage-store" {
		t.Errorf("Name() = %q, want 'usage-store'", checker.Name())
	}

	result := checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", result.Status)
	}
}

func TestStoreChecker_Unreachable(t *testing.T) {
	checker := NewStoreChecker("usage-store", &unreachableStore{})

	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", result.Status)
	}
	if result.Error == nil {
		t.Error("expected error on result")
	}
}

type brokenCache struct{}

func (c *brokenCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("write failed")
}
func (c *brokenCache) Delete(ctx context.Context, key string) error { return nil }

func TestCacheChecker_Healthy(t *testing.T) {
	checker := NewCacheChecker("local-cache", cache.NewMemory(10))

	result := checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", result.Status)
	}
}

func TestCacheChecker_WriteFailure(t *testing.T) {
	checker := NewCacheChecker("local-cache", &brokenCache{})

	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", result.Status)
	}
}
