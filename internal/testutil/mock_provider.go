// Package testutil provides shared test utilities for fleetmon.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwsmith1983/fleetmon/internal/provider"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

type mockBucket struct {
	hits, misses int64
	expiresAt    time.Time
}

type mockSnapshot struct {
	snap      types.MetricSnapshot
	expiresAt time.Time
}

// MockProvider is an in-memory Provider implementation for testing.
// Keys expire against Now, which tests may replace to move time forward.
type MockProvider struct {
	mu        sync.Mutex
	buckets   map[string]*mockBucket
	snapshots map[string]mockSnapshot

	// Now is the provider clock. Defaults to time.Now.
	Now func() time.Time

	// BucketErr and SnapshotErr, when set, are returned by the matching calls.
	BucketErr   error
	SnapshotErr error

	putCalls atomic.Int64
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		buckets:   make(map[string]*mockBucket),
		snapshots: make(map[string]mockSnapshot),
		Now:       time.Now,
	}
}

func bucketKey(family, hour string) string { return family + ":" + hour }

func (m *MockProvider) IncrBucket(_ context.Context, family, hour string, hit bool, ttl time.Duration) (types.HourBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BucketErr != nil {
		return types.HourBucket{}, m.BucketErr
	}

	now := m.Now()
	key := bucketKey(family, hour)
	b, ok := m.buckets[key]
	if !ok || !now.Before(b.expiresAt) {
		b = &mockBucket{expiresAt: now.Add(ttl)}
		m.buckets[key] = b
	}
	if hit {
		b.hits++
	} else {
		b.misses++
	}
	return types.HourBucket{Family: family, Hour: hour, Hits: b.hits, Misses: b.misses}, nil
}

func (m *MockProvider) GetBucket(_ context.Context, family, hour string) (types.HourBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BucketErr != nil {
		return types.HourBucket{}, m.BucketErr
	}

	out := types.HourBucket{Family: family, Hour: hour}
	if b, ok := m.buckets[bucketKey(family, hour)]; ok && m.Now().Before(b.expiresAt) {
		out.Hits, out.Misses = b.hits, b.misses
	}
	return out, nil
}

func (m *MockProvider) PutSnapshots(_ context.Context, snapshots []types.MetricSnapshot, ttl time.Duration) error {
	m.putCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SnapshotErr != nil {
		return m.SnapshotErr
	}

	exp := m.Now().Add(ttl)
	for _, s := range snapshots {
		if _, err := json.Marshal(s); err != nil {
			continue
		}
		m.snapshots[s.Metric.Name+":"+s.ID] = mockSnapshot{snap: s, expiresAt: exp}
	}
	return nil
}

// Snapshots returns every unexpired snapshot currently stored.
func (m *MockProvider) Snapshots() []types.MetricSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	var out []types.MetricSnapshot
	for _, s := range m.snapshots {
		if now.Before(s.expiresAt) {
			out = append(out, s.snap)
		}
	}
	return out
}

// PutCalls returns how many times PutSnapshots was called.
func (m *MockProvider) PutCalls() int64 {
	return m.putCalls.Load()
}

// SetSnapshotErr swaps the PutSnapshots failure under the provider lock.
func (m *MockProvider) SetSnapshotErr(err error) {
	m.mu.Lock()
	m.SnapshotErr = err
	m.mu.Unlock()
}

// SetBucketErr swaps the bucket failure under the provider lock.
func (m *MockProvider) SetBucketErr(err error) {
	m.mu.Lock()
	m.BucketErr = err
	m.mu.Unlock()
}

func (m *MockProvider) Start(_ context.Context) error { return nil }
func (m *MockProvider) Stop(_ context.Context) error  { return nil }
func (m *MockProvider) Ping(_ context.Context) error  { return nil }
