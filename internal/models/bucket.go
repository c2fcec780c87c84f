// Package models provides the bucket and event records shared by every
// store implementation and by the sync engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// SyncOriginKey is the reserved bucket-data key recording which device
	// a synced bucket's events originally came from.
	SyncOriginKey = "sync.origin"

	// UnknownHostname is the placeholder trackers write before they know
	// the device identity. It must never survive into a sync destination.
	UnknownHostname = "unknown"

	// SyncedFromSeparator joins a bucket's base id with its origin device
	// in the id of a pull destination bucket.
	SyncedFromSeparator = "-synced-from-"
)

// BucketMetadata carries advisory first/last event instants for a bucket.
// Stores fill it when listing buckets; it is never authoritative for the
// merge, which always re-reads the destination's most recent event.
type BucketMetadata struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Bucket is a named, per-device, append-only log of events sharing a
// type/client tag. Bucket ids are unique within a store but carry no
// cross-store uniqueness guarantee.
type Bucket struct {
	ID       string         `json:"id"`
	Type     string         `json:"type,omitempty"`
	Client   string         `json:"client,omitempty"`
	Hostname string         `json:"hostname,omitempty"`
	Created  *time.Time     `json:"created,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata BucketMetadata `json:"metadata,omitempty"`
}

// Validate checks the fields every store requires before accepting a bucket.
func (b *Bucket) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bucket id is required")
	}
	return nil
}

// Origin returns the device the bucket's events came from: the reserved
// sync.origin data value when present, the hostname otherwise.
func (b *Bucket) Origin() string {
	if b.Data != nil {
		if origin, ok := b.Data[SyncOriginKey].(string); ok && origin != "" {
			return origin
		}
	}
	return b.Hostname
}

// SetOrigin records the given device id under the reserved sync.origin key.
func (b *Bucket) SetOrigin(deviceID string) {
	if b.Data == nil {
		b.Data = make(map[string]any, 1)
	}
	b.Data[SyncOriginKey] = deviceID
}

// BaseID strips a trailing "-synced-from-<origin>" suffix, if any. Applied
// before computing a pull destination id so repeated pulls never chain
// suffixes.
func (b *Bucket) BaseID() string {
	base, _, _ := strings.Cut(b.ID, SyncedFromSeparator)
	return base
}

// Clone returns a deep copy, including the data map. Metadata instants are
// copied by pointer value so mutating the clone never touches the source.
func (b *Bucket) Clone() *Bucket {
	out := *b
	if b.Data != nil {
		out.Data = make(map[string]any, len(b.Data))
		for k, v := range b.Data {
			out.Data[k] = v
		}
	}
	if b.Created != nil {
		created := *b.Created
		out.Created = &created
	}
	if b.Metadata.Start != nil {
		start := *b.Metadata.Start
		out.Metadata.Start = &start
	}
	if b.Metadata.End != nil {
		end := *b.Metadata.End
		out.Metadata.End = &end
	}
	return &out
}

// Info is the live server's identity reply.
type Info struct {
	Hostname string `json:"hostname"`
	DeviceID string `json:"device_id"`
	Version  string `json:"version,omitempty"`
	Testing  bool   `json:"testing,omitempty"`
}
