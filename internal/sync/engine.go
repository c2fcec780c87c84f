package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store"
)

// DestinationID computes the id a source bucket syncs into, as a pure
// function of the bucket and the direction.
//
// Pushes keep the id unchanged: the staging store mirrors the live store
// 1:1. Pulls strip any existing "-synced-from-<origin>" suffix before
// appending the bucket's origin, so repeated pulls always resolve to the
// same destination and suffixes never chain.
func DestinationID(src *models.Bucket, isPush bool) string {
	if isPush {
		return src.ID
	}
	return src.BaseID() + models.SyncedFromSeparator + src.Origin()
}

// SyncDatastores merges all allow-listed buckets from one store into
// another. isPush indicates we are exporting the live store into staging;
// otherwise we are pulling a remote into the live store. srcDeviceID
// repairs buckets whose hostname is still the "unknown" placeholder.
//
// Buckets merge independently; they are visited in ascending order of
// their recorded end instant only so runs are reproducible.
func (s *Syncer) SyncDatastores(ctx context.Context, from, to store.AccessMethod, isPush bool, srcDeviceID string, bucketIDs []string) ([]BucketResult, error) {
	all, err := from.GetBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source buckets: %w", err)
	}

	allowed := make(map[string]bool, len(bucketIDs))
	for _, id := range bucketIDs {
		allowed[id] = true
	}

	var buckets []*models.Bucket
	for _, b := range all {
		if !allowed[b.ID] {
			continue
		}
		if b.Hostname == models.UnknownHostname {
			if srcDeviceID == "" {
				s.logger.Printf("Warning: bucket %s has no usable device attribution, skipping", b.ID)
				continue
			}
			s.logger.Printf("Warning: bucket %s hostname was %q, using source device id %s",
				b.ID, models.UnknownHostname, srcDeviceID)
			b = b.Clone()
			b.Hostname = srcDeviceID
		}
		buckets = append(buckets, b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		ei, ej := buckets[i].Metadata.End, buckets[j].Metadata.End
		switch {
		case ei == nil && ej == nil:
			return buckets[i].ID < buckets[j].ID
		case ei == nil:
			return true
		case ej == nil:
			return false
		case ei.Equal(*ej):
			return buckets[i].ID < buckets[j].ID
		default:
			return ei.Before(*ej)
		}
	})

	// Results are labeled with their destination before observers hear
	// about them: pushes go to the staging store, pulls come from the
	// named source device.
	storeLabel := srcDeviceID
	if isPush {
		storeLabel = StagingStore
	}

	var results []BucketResult
	for _, src := range buckets {
		dst, err := s.getOrCreateSyncBucket(ctx, src, to, isPush)
		if err != nil {
			return nil, err
		}

		result, err := s.syncOne(ctx, from, to, src, dst)
		if err != nil {
			return nil, err
		}
		result.Store = storeLabel
		results = append(results, result)
		s.notifyBucket(result)
	}

	return results, nil
}

// getOrCreateSyncBucket resolves the destination bucket for a source
// bucket, materializing it if absent. A freshly created bucket records the
// source's hostname under the reserved sync.origin key so later pulls of
// the destination still attribute the data to the right device.
func (s *Syncer) getOrCreateSyncBucket(ctx context.Context, src *models.Bucket, to store.AccessMethod, isPush bool) (*models.Bucket, error) {
	id := DestinationID(src, isPush)

	dst, err := to.GetBucket(ctx, id)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, store.ErrNoSuchBucket) {
		return nil, fmt.Errorf("failed to resolve destination bucket %s: %w", id, err)
	}

	created := src.Clone()
	created.ID = id
	created.SetOrigin(src.Hostname)

	if err := to.CreateBucket(ctx, created); err != nil && !errors.Is(err, store.ErrBucketAlreadyExists) {
		return nil, fmt.Errorf("failed to create destination bucket %s: %w", id, err)
	}

	dst, err = to.GetBucket(ctx, id)
	if err != nil {
		// The bucket was just created; not finding it now means the store
		// is lying to us and nothing downstream can be trusted.
		return nil, fmt.Errorf("destination bucket %s missing immediately after creation: %w", id, err)
	}
	return dst, nil
}

// syncOne copies every source event not yet reflected at the destination.
//
// The resume point is the end instant of the destination's most recent
// event; a source event timestamped exactly at the resume point is fetched
// again on the next run. The heartbeat merge absorbs such replays when the
// payload matches, so the worst case is one boundary duplicate, never a
// gap.
func (s *Syncer) syncOne(ctx context.Context, from, to store.AccessMethod, src, dst *models.Bucket) (BucketResult, error) {
	before, err := to.GetEventCount(ctx, dst.ID)
	if err != nil {
		return BucketResult{}, fmt.Errorf("failed to count events in %s: %w", dst.ID, err)
	}

	recent, err := to.GetEvents(ctx, dst.ID, nil, nil, 1)
	if err != nil {
		return BucketResult{}, fmt.Errorf("failed to read resume point for %s: %w", dst.ID, err)
	}
	var resume *time.Time
	if len(recent) > 0 {
		t := recent[0].EndTime()
		resume = &t
		s.logger.Printf("Bucket %s: resuming at %s", dst.ID, t.Format(timeFormat))
	} else {
		s.logger.Printf("Bucket %s: destination empty, syncing from the beginning", dst.ID)
	}

	events, err := from.GetEvents(ctx, src.ID, resume, nil, 0)
	if err != nil {
		return BucketResult{}, fmt.Errorf("failed to fetch source events from %s: %w", src.ID, err)
	}

	for i, e := range events {
		events[i] = e.WithoutID()
	}
	models.SortEventsByTimestamp(events)

	for _, e := range events {
		if _, err := to.Heartbeat(ctx, dst.ID, e, 0); err != nil {
			return BucketResult{}, fmt.Errorf("failed to insert event into %s: %w", dst.ID, err)
		}
	}

	after, err := to.GetEventCount(ctx, dst.ID)
	if err != nil {
		return BucketResult{}, fmt.Errorf("failed to count events in %s: %w", dst.ID, err)
	}

	s.logger.Printf("Bucket %s: synced %d new event(s)", dst.ID, after-before)

	return BucketResult{
		SourceID:    src.ID,
		DestID:      dst.ID,
		NewEvents:   after - before,
		TotalEvents: after,
	}, nil
}
