package seed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/datastore"
)

// Durations in fixtures are plain nanosecond integers, so the YAML below
// spells them out (1e9 = 1s).
const fixtureYAML = `
base: 2026-03-01T12:00:00Z
devices:
  - device_id: device-b
    buckets:
      - id: aw-watcher-afk_device-b
        type: afkstatus
        client: aw-watcher-afk
        events:
          - offset: 0
            duration: 1000000000
            data: {status: afk}
          - offset: 60000000000
            duration: 2000000000
            data: {status: not-afk}
      - id: aw-watcher-window_device-b
        type: currentwindow
        client: aw-watcher-window
        generate:
          count: 5
          step: 10000000000
          duration: 1000000000
`

func TestLoad(t *testing.T) {
	f, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(f.Devices) != 1 || len(f.Devices[0].Buckets) != 2 {
		t.Fatalf("unexpected fixture shape: %+v", f)
	}

	b := f.Devices[0].Buckets[0]
	if b.Events[1].Offset != time.Minute {
		t.Errorf("offset = %v, want 1m", b.Events[1].Offset)
	}
	gen := f.Devices[0].Buckets[1].Generate
	if gen == nil || gen.Count != 5 || gen.Step != 10*time.Second {
		t.Errorf("generate = %+v", gen)
	}
}

func TestLoad_RejectsMissingIdentifiers(t *testing.T) {
	if _, err := Load([]byte("devices:\n  - buckets: []\n")); err == nil {
		t.Error("Load() accepted device without device_id")
	}
	if _, err := Load([]byte("devices:\n  - device_id: d\n    buckets:\n      - type: test\n")); err == nil {
		t.Error("Load() accepted bucket without id")
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := Apply(ctx, dir, f); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	ds, err := datastore.Open(filepath.Join(dir, "device-b", "store.db"))
	if err != nil {
		t.Fatalf("Open() on seeded store failed: %v", err)
	}
	defer ds.Close()

	count, err := ds.GetEventCount(ctx, "aw-watcher-afk_device-b")
	if err != nil {
		t.Fatalf("GetEventCount() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("afk bucket has %d events, want 2", count)
	}

	count, err = ds.GetEventCount(ctx, "aw-watcher-window_device-b")
	if err != nil {
		t.Fatalf("GetEventCount() failed: %v", err)
	}
	if count != 5 {
		t.Errorf("window bucket has %d events, want 5", count)
	}

	// Hostname defaults to the device id when the fixture omits it.
	b, err := ds.GetBucket(ctx, "aw-watcher-afk_device-b")
	if err != nil {
		t.Fatalf("GetBucket() failed: %v", err)
	}
	if b.Hostname != "device-b" {
		t.Errorf("hostname = %q, want device-b", b.Hostname)
	}
}

func TestApply_ReseedAppends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := Apply(ctx, dir, f); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}
	if err := Apply(ctx, dir, f); err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}

	ds, err := datastore.Open(filepath.Join(dir, "device-b", "store.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer ds.Close()

	count, err := ds.GetEventCount(ctx, "aw-watcher-afk_device-b")
	if err != nil {
		t.Fatalf("GetEventCount() failed: %v", err)
	}
	if count != 4 {
		t.Errorf("got %d events after re-seed, want 4", count)
	}
}

func TestGenerateEvents(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := GenerateEvents(3, start, time.Minute, time.Second)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		want := start.Add(time.Duration(i) * time.Minute)
		if !e.Timestamp.Equal(want) {
			t.Errorf("event %d at %v, want %v", i, e.Timestamp, want)
		}
		if e.Data["seq"] != i {
			t.Errorf("event %d seq = %v", i, e.Data["seq"])
		}
	}
}
