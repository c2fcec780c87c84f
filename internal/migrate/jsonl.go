// Package migrate exports and imports store snapshots as JSONL.
//
// Each line is an envelope holding either a bucket or an event:
//
//	{"kind":"bucket","bucket":{...}}
//	{"kind":"event","bucket_id":"...","event":{...}}
//
// Buckets always precede their events, so a snapshot can be imported in a
// single streaming read.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store"
)

// Line kinds used in the envelope.
const (
	KindBucket = "bucket"
	KindEvent  = "event"
)

// Envelope is one JSONL line.
type Envelope struct {
	Kind     string         `json:"kind"`
	Bucket   *models.Bucket `json:"bucket,omitempty"`
	BucketID string         `json:"bucket_id,omitempty"`
	Event    *models.Event  `json:"event,omitempty"`
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Buckets int
	Events  int
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	BucketsCreated int
	BucketsSkipped int
	EventsImported int
}

// Export writes the store's buckets and their events to w as JSONL.
// bucketIDs restricts the export; nil or empty exports every bucket.
func Export(ctx context.Context, src store.AccessMethod, w io.Writer, bucketIDs []string) (*ExportResult, error) {
	all, err := src.GetBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	allowed := make(map[string]bool, len(bucketIDs))
	for _, id := range bucketIDs {
		allowed[id] = true
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		if len(bucketIDs) > 0 && !allowed[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	enc := json.NewEncoder(w)
	result := &ExportResult{}

	for _, id := range ids {
		if err := enc.Encode(Envelope{Kind: KindBucket, Bucket: all[id]}); err != nil {
			return nil, fmt.Errorf("failed to write bucket %s: %w", id, err)
		}
		result.Buckets++

		events, err := src.GetEvents(ctx, id, nil, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events for %s: %w", id, err)
		}
		models.SortEventsByTimestamp(events)

		for _, e := range events {
			if err := enc.Encode(Envelope{Kind: KindEvent, BucketID: id, Event: e}); err != nil {
				return nil, fmt.Errorf("failed to write event for %s: %w", id, err)
			}
			result.Events++
		}
	}

	return result, nil
}

// Import reads a JSONL snapshot into the store. Buckets that already exist
// are skipped, never overwritten; their events are still appended with
// store-local ids stripped.
func Import(ctx context.Context, dst store.AccessMethod, r io.Reader) (*ImportResult, error) {
	result := &ImportResult{}
	pending := make(map[string][]*models.Event)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch env.Kind {
		case KindBucket:
			if env.Bucket == nil {
				return nil, fmt.Errorf("line %d: bucket envelope without bucket", lineNum)
			}
			err := dst.CreateBucket(ctx, env.Bucket)
			switch {
			case err == nil:
				result.BucketsCreated++
			case errors.Is(err, store.ErrBucketAlreadyExists):
				result.BucketsSkipped++
			default:
				return nil, fmt.Errorf("failed to create bucket %s: %w", env.Bucket.ID, err)
			}

		case KindEvent:
			if env.Event == nil || env.BucketID == "" {
				return nil, fmt.Errorf("line %d: event envelope missing event or bucket_id", lineNum)
			}
			pending[env.BucketID] = append(pending[env.BucketID], env.Event.WithoutID())

		default:
			return nil, fmt.Errorf("line %d: unknown envelope kind %q", lineNum, env.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		events := pending[id]
		models.SortEventsByTimestamp(events)
		if err := dst.InsertEvents(ctx, id, events); err != nil {
			return nil, fmt.Errorf("failed to import events into %s: %w", id, err)
		}
		result.EventsImported += len(events)
	}

	return result, nil
}

// ExportFile exports to a file, written atomically via a temp file.
func ExportFile(ctx context.Context, src store.AccessMethod, path string, bucketIDs []string) (*ExportResult, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}

	result, err := Export(ctx, src, f, bucketIDs)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close snapshot file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return result, nil
}

// ImportFile imports a snapshot from a file.
func ImportFile(ctx context.Context, dst store.AccessMethod, path string) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	return Import(ctx, dst, f)
}
