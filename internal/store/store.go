// Package store defines the uniform capability surface that every bucket
// store exposes, whether it is the live server or a file-backed database.
// The sync engine is written exclusively against this interface, so it
// never needs to know which kind of store it is moving events between.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/models"
)

// Common errors returned by store operations.
//
// These can be checked using errors.Is() regardless of which store
// implementation produced them:
//
//	if errors.Is(err, store.ErrNoSuchBucket) {
//	    // Bucket is absent; the sync engine creates it here.
//	}
var (
	// ErrNoSuchBucket is returned when the operation targets a bucket
	// that does not exist in the store.
	ErrNoSuchBucket = errors.New("no such bucket")

	// ErrBucketAlreadyExists is returned when attempting to create a
	// bucket whose id is already taken. Callers treat this as "already
	// initialized", never as a failure to propagate.
	ErrBucketAlreadyExists = errors.New("bucket already exists")
)

// AccessMethod is the capability set shared by the live server client and
// file-backed datastores.
//
// GetEvents returns events newest-first. The optional start/end bounds form
// a half-open window [start, end) over event timestamps; a limit of 0 means
// unbounded.
//
// Heartbeat inserts an event, merging it into the bucket's most recent
// event when the payloads are equal and the new event begins no later than
// the last event's end plus pulse. Replaying an already-present event is
// therefore a no-op even with pulse 0, while a positive gap always inserts.
type AccessMethod interface {
	GetInfo(ctx context.Context) (*models.Info, error)
	GetBuckets(ctx context.Context) (map[string]*models.Bucket, error)
	GetBucket(ctx context.Context, id string) (*models.Bucket, error)
	CreateBucket(ctx context.Context, bucket *models.Bucket) error
	GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]*models.Event, error)
	GetEventCount(ctx context.Context, bucketID string) (int, error)
	InsertEvents(ctx context.Context, bucketID string, events []*models.Event) error
	Heartbeat(ctx context.Context, bucketID string, event *models.Event, pulse time.Duration) (*models.Event, error)
}

// CanMerge decides whether a heartbeat event merges into the bucket's most
// recent event. Both store implementations share this rule so the merge
// semantics cannot drift between them.
func CanMerge(last, event *models.Event, pulse time.Duration) bool {
	if last == nil {
		return false
	}
	if !last.DataEqual(event) {
		return false
	}
	if event.Timestamp.Before(last.Timestamp) {
		return false
	}
	return !event.Timestamp.After(last.EndTime().Add(pulse))
}

// Merge extends the last event to cover the heartbeat event and returns it.
// The last event's timestamp is kept; only the end may move forward.
func Merge(last, event *models.Event) *models.Event {
	merged := *last
	if event.EndTime().After(last.EndTime()) {
		merged.Duration = event.EndTime().Sub(last.Timestamp)
	}
	return &merged
}
