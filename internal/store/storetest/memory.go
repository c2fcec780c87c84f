// Package storetest provides an in-memory store.AccessMethod for tests
// that need full control over store contents without touching disk.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store"
)

// Memory is an in-memory store implementing store.AccessMethod.
// It is not safe for concurrent use; sync passes are sequential anyway.
type Memory struct {
	// DeviceID is returned by GetInfo.
	DeviceID string

	// FailAll, when set, makes every call return this error. Used to
	// test fatal-on-first-failure propagation.
	FailAll error

	buckets map[string]*models.Bucket
	events  map[string][]*models.Event
	nextID  int64
}

var _ store.AccessMethod = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory(deviceID string) *Memory {
	return &Memory{
		DeviceID: deviceID,
		buckets:  make(map[string]*models.Bucket),
		events:   make(map[string][]*models.Event),
		nextID:   1,
	}
}

func (m *Memory) GetInfo(ctx context.Context) (*models.Info, error) {
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	return &models.Info{DeviceID: m.DeviceID, Hostname: m.DeviceID}, nil
}

func (m *Memory) GetBuckets(ctx context.Context) (map[string]*models.Bucket, error) {
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	out := make(map[string]*models.Bucket, len(m.buckets))
	for id, b := range m.buckets {
		c := b.Clone()
		if events := m.events[id]; len(events) > 0 {
			sorted := m.sortedAsc(id)
			start := sorted[0].Timestamp
			end := sorted[len(sorted)-1].EndTime()
			c.Metadata.Start = &start
			c.Metadata.End = &end
		}
		out[id] = c
	}
	return out, nil
}

func (m *Memory) GetBucket(ctx context.Context, id string) (*models.Bucket, error) {
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	b, ok := m.buckets[id]
	if !ok {
		return nil, fmt.Errorf("bucket %q: %w", id, store.ErrNoSuchBucket)
	}
	return b.Clone(), nil
}

func (m *Memory) CreateBucket(ctx context.Context, bucket *models.Bucket) error {
	if m.FailAll != nil {
		return m.FailAll
	}
	if _, ok := m.buckets[bucket.ID]; ok {
		return fmt.Errorf("bucket %q: %w", bucket.ID, store.ErrBucketAlreadyExists)
	}
	m.buckets[bucket.ID] = bucket.Clone()
	return nil
}

func (m *Memory) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]*models.Event, error) {
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	if _, ok := m.buckets[bucketID]; !ok {
		return nil, fmt.Errorf("bucket %q: %w", bucketID, store.ErrNoSuchBucket)
	}

	sorted := m.sortedAsc(bucketID)

	// Newest-first with the half-open window [start, end).
	var out []*models.Event
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		if start != nil && e.Timestamp.Before(*start) {
			continue
		}
		if end != nil && !e.Timestamp.Before(*end) {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetEventCount(ctx context.Context, bucketID string) (int, error) {
	if m.FailAll != nil {
		return 0, m.FailAll
	}
	if _, ok := m.buckets[bucketID]; !ok {
		return 0, fmt.Errorf("bucket %q: %w", bucketID, store.ErrNoSuchBucket)
	}
	return len(m.events[bucketID]), nil
}

func (m *Memory) InsertEvents(ctx context.Context, bucketID string, events []*models.Event) error {
	if m.FailAll != nil {
		return m.FailAll
	}
	if _, ok := m.buckets[bucketID]; !ok {
		return fmt.Errorf("bucket %q: %w", bucketID, store.ErrNoSuchBucket)
	}
	for _, e := range events {
		copied := *e
		copied.ID = m.nextID
		m.nextID++
		m.events[bucketID] = append(m.events[bucketID], &copied)
	}
	return nil
}

func (m *Memory) Heartbeat(ctx context.Context, bucketID string, event *models.Event, pulse time.Duration) (*models.Event, error) {
	if m.FailAll != nil {
		return nil, m.FailAll
	}
	if _, ok := m.buckets[bucketID]; !ok {
		return nil, fmt.Errorf("bucket %q: %w", bucketID, store.ErrNoSuchBucket)
	}

	var last *models.Event
	if sorted := m.sortedAsc(bucketID); len(sorted) > 0 {
		last = sorted[len(sorted)-1]
	}

	if store.CanMerge(last, event, pulse) {
		merged := store.Merge(last, event)
		last.Duration = merged.Duration
		out := *last
		return &out, nil
	}

	if err := m.InsertEvents(ctx, bucketID, []*models.Event{event}); err != nil {
		return nil, err
	}
	stored := m.events[bucketID][len(m.events[bucketID])-1]
	out := *stored
	return &out, nil
}

// sortedAsc returns the bucket's events ascending by timestamp, ties by id.
func (m *Memory) sortedAsc(bucketID string) []*models.Event {
	events := append([]*models.Event(nil), m.events[bucketID]...)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].ID < events[j].ID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}
