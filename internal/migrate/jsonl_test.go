package migrate

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store/storetest"
)

func seedStore(t *testing.T) *storetest.Memory {
	t.Helper()
	ctx := context.Background()
	m := storetest.NewMemory("device-a")

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"aw-watcher-afk_device-a", "aw-watcher-window_device-a"} {
		if err := m.CreateBucket(ctx, &models.Bucket{
			ID: id, Type: "test", Client: "test", Hostname: "device-a",
		}); err != nil {
			t.Fatalf("CreateBucket(%s) failed: %v", id, err)
		}
		if err := m.InsertEvents(ctx, id, []*models.Event{
			{Timestamp: t0, Duration: time.Second, Data: map[string]any{"seq": float64(0)}},
			{Timestamp: t0.Add(time.Minute), Duration: time.Second, Data: map[string]any{"seq": float64(1)}},
		}); err != nil {
			t.Fatalf("InsertEvents(%s) failed: %v", id, err)
		}
	}
	return m
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	exp, err := Export(ctx, src, &buf, nil)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if exp.Buckets != 2 || exp.Events != 4 {
		t.Fatalf("exported %d buckets / %d events, want 2 / 4", exp.Buckets, exp.Events)
	}

	dst := storetest.NewMemory("device-b")
	imp, err := Import(ctx, dst, &buf)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if imp.BucketsCreated != 2 || imp.BucketsSkipped != 0 || imp.EventsImported != 4 {
		t.Fatalf("import result = %+v", imp)
	}

	for _, id := range []string{"aw-watcher-afk_device-a", "aw-watcher-window_device-a"} {
		count, err := dst.GetEventCount(ctx, id)
		if err != nil {
			t.Fatalf("GetEventCount(%s) failed: %v", id, err)
		}
		if count != 2 {
			t.Errorf("bucket %s has %d events, want 2", id, count)
		}
	}
}

func TestExport_AllowList(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	exp, err := Export(ctx, src, &buf, []string{"aw-watcher-afk_device-a"})
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if exp.Buckets != 1 || exp.Events != 2 {
		t.Errorf("exported %d buckets / %d events, want 1 / 2", exp.Buckets, exp.Events)
	}
	if strings.Contains(buf.String(), "aw-watcher-window_device-a") {
		t.Error("filtered bucket leaked into snapshot")
	}
}

func TestImport_ExistingBucketsSkippedEventsAppended(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	if _, err := Export(ctx, src, &buf, nil); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	// Importing twice into the same store skips the buckets but still
	// appends events; snapshots are append-only like everything else.
	dst := storetest.NewMemory("device-b")
	snapshot := buf.Bytes()
	if _, err := Import(ctx, dst, bytes.NewReader(snapshot)); err != nil {
		t.Fatalf("first Import() failed: %v", err)
	}
	imp, err := Import(ctx, dst, bytes.NewReader(snapshot))
	if err != nil {
		t.Fatalf("second Import() failed: %v", err)
	}
	if imp.BucketsCreated != 0 || imp.BucketsSkipped != 2 {
		t.Errorf("second import result = %+v", imp)
	}
	count, _ := dst.GetEventCount(ctx, "aw-watcher-afk_device-a")
	if count != 4 {
		t.Errorf("got %d events after double import, want 4", count)
	}
}

func TestImport_RejectsMalformedLines(t *testing.T) {
	ctx := context.Background()
	dst := storetest.NewMemory("device-b")

	cases := []struct {
		name  string
		input string
	}{
		{"bad json", "{not json\n"},
		{"unknown kind", `{"kind":"widget"}` + "\n"},
		{"bucket without body", `{"kind":"bucket"}` + "\n"},
		{"event without bucket_id", `{"kind":"event","event":{"timestamp":"2026-03-01T12:00:00Z","duration":1,"data":{}}}` + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Import(ctx, dst, strings.NewReader(tc.input)); err == nil {
				t.Error("Import() accepted malformed input")
			}
		})
	}
}

func TestExportImportFile(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")

	if _, err := ExportFile(ctx, src, path, nil); err != nil {
		t.Fatalf("ExportFile() failed: %v", err)
	}

	dst := storetest.NewMemory("device-b")
	imp, err := ImportFile(ctx, dst, path)
	if err != nil {
		t.Fatalf("ImportFile() failed: %v", err)
	}
	if imp.EventsImported != 4 {
		t.Errorf("imported %d events, want 4", imp.EventsImported)
	}
}
