package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/store"
)

const timeFormat = time.RFC3339Nano

// BucketCount pairs a bucket id with its event count.
type BucketCount struct {
	ID     string `json:"id"`
	Events int    `json:"events"`
}

// StoreListing is the report for one store.
type StoreListing struct {
	Name    string        `json:"name"`
	Buckets []BucketCount `json:"buckets"`
}

// Listing is a read-only snapshot of every store this device can see: the
// live store, its own staging store, and each discovered remote.
type Listing struct {
	DeviceID string         `json:"device_id"`
	Stores   []StoreListing `json:"stores"`
}

// ListBuckets builds the full listing. Any failing store call aborts the
// whole report; no partial output is returned.
func (s *Syncer) ListBuckets(ctx context.Context) (*Listing, error) {
	info, err := s.live.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device identity: %w", err)
	}

	staging, closeStaging, err := s.bootstrapStaging(info.DeviceID)
	if err != nil {
		return nil, err
	}
	defer closeStaging()

	remotes, err := s.findRemotes(info.DeviceID)
	if err != nil {
		return nil, err
	}

	listing := &Listing{DeviceID: info.DeviceID}

	liveBuckets, err := listStore(ctx, s.live)
	if err != nil {
		return nil, fmt.Errorf("failed to list live store: %w", err)
	}
	listing.Stores = append(listing.Stores, StoreListing{Name: "live", Buckets: liveBuckets})

	stagingBuckets, err := listStore(ctx, staging)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging store: %w", err)
	}
	listing.Stores = append(listing.Stores, StoreListing{Name: "staging", Buckets: stagingBuckets})

	for _, remote := range remotes {
		src, closeSrc, err := s.open(remote.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open remote store %s: %w", remote.Path, err)
		}
		buckets, err := listStore(ctx, src)
		if cerr := closeSrc(); cerr != nil {
			s.logger.Printf("Warning: failed to close remote store %s: %v", remote.Path, cerr)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list remote %s: %w", remote.DeviceID, err)
		}
		listing.Stores = append(listing.Stores, StoreListing{
			Name:    "remote " + remote.DeviceID,
			Buckets: buckets,
		})
	}

	return listing, nil
}

// listStore collects (bucket id, event count) pairs sorted by id.
func listStore(ctx context.Context, s store.AccessMethod) ([]BucketCount, error) {
	buckets, err := s.GetBuckets(ctx)
	if err != nil {
		return nil, err
	}

	counts := make([]BucketCount, 0, len(buckets))
	for id := range buckets {
		n, err := s.GetEventCount(ctx, id)
		if err != nil {
			return nil, err
		}
		counts = append(counts, BucketCount{ID: id, Events: n})
	}

	sort.Slice(counts, func(i, j int) bool { return counts[i].ID < counts[j].ID })
	return counts, nil
}

// FormatListing renders a listing as deterministic plain text.
func FormatListing(l *Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device: %s\n", l.DeviceID)
	for _, s := range l.Stores {
		fmt.Fprintf(&b, "%s:\n", s.Name)
		if len(s.Buckets) == 0 {
			b.WriteString("  (no buckets)\n")
			continue
		}
		for _, bc := range s.Buckets {
			fmt.Fprintf(&b, "  - %s  (%d events)\n", bc.ID, bc.Events)
		}
	}
	return b.String()
}
