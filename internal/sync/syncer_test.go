package sync

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/datastore"
	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store/storetest"
)

// seedRemote writes a store file for a fake device into the sync dir.
func seedRemote(t *testing.T, syncDir, deviceID, bucketID string, n int, start time.Time) {
	t.Helper()
	ctx := context.Background()

	ds, err := datastore.Open(filepath.Join(syncDir, deviceID, StagingFileName))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer ds.Close()

	if err := ds.CreateBucket(ctx, &models.Bucket{
		ID:       bucketID,
		Type:     "test",
		Client:   "test",
		Hostname: deviceID,
	}); err != nil {
		t.Fatalf("CreateBucket() failed: %v", err)
	}

	events := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, &models.Event{
			Timestamp: start.Add(time.Duration(i) * 10 * time.Millisecond),
			Data:      map[string]any{"test": i},
		})
	}
	if err := ds.InsertEvents(ctx, bucketID, events); err != nil {
		t.Fatalf("InsertEvents() failed: %v", err)
	}
}

func TestFindRemotes_ExcludesLocal(t *testing.T) {
	syncDir := t.TempDir()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRemote(t, syncDir, "device-a", "bucket", 1, t0)
	seedRemote(t, syncDir, "device-b", "bucket", 1, t0)

	// A stray non-store file must be ignored.
	if err := os.WriteFile(filepath.Join(syncDir, "device-b", "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	s := New(storetest.NewMemory("device-a"), syncDir, log.New(io.Discard, "", 0))

	remotes, err := s.findRemotes("device-a")
	if err != nil {
		t.Fatalf("findRemotes() failed: %v", err)
	}
	if len(remotes) != 1 {
		t.Fatalf("got %d remotes, want 1: %+v", len(remotes), remotes)
	}
	if remotes[0].DeviceID != "device-b" {
		t.Errorf("remote = %q, want device-b", remotes[0].DeviceID)
	}
}

func TestFindRemotes_MissingSyncDirIsFatal(t *testing.T) {
	s := New(storetest.NewMemory("device-a"), filepath.Join(t.TempDir(), "nope"), log.New(io.Discard, "", 0))
	if _, err := s.findRemotes("device-a"); err == nil {
		t.Fatal("expected an error for an unlistable sync directory")
	}
}

func TestRun_FullPass(t *testing.T) {
	ctx := context.Background()
	syncDir := t.TempDir()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Another device exported a bucket into the folder.
	seedRemote(t, syncDir, "device-b", "afk-b", 3, t0)

	// This device's live store has its own bucket to push.
	live := storetest.NewMemory("device-a")
	if err := live.CreateBucket(ctx, &models.Bucket{ID: "window-a", Type: "window", Hostname: "device-a"}); err != nil {
		t.Fatalf("CreateBucket() failed: %v", err)
	}
	if err := live.InsertEvents(ctx, "window-a", []*models.Event{
		{Timestamp: t0, Duration: time.Second, Data: map[string]any{"app": "editor"}},
		{Timestamp: t0.Add(time.Minute), Duration: time.Second, Data: map[string]any{"app": "browser"}},
	}); err != nil {
		t.Fatalf("InsertEvents() failed: %v", err)
	}

	s := New(live, syncDir, log.New(io.Discard, "", 0))

	report, err := s.Run(ctx, Options{BucketIDs: []string{"afk-b", "window-a"}})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if report.DeviceID != "device-a" {
		t.Errorf("DeviceID = %q, want device-a", report.DeviceID)
	}
	if len(report.Remotes) != 1 {
		t.Fatalf("got %d remotes, want 1", len(report.Remotes))
	}
	if report.PassID == "" {
		t.Error("pass id missing")
	}

	// Pull landed in the live store under the suffixed id.
	count, err := live.GetEventCount(ctx, "afk-b-synced-from-device-b")
	if err != nil {
		t.Fatalf("pulled bucket missing: %v", err)
	}
	if count != 3 {
		t.Errorf("pulled %d events, want 3", count)
	}

	// Push landed in the staging store under the unchanged id.
	staging, err := datastore.Open(filepath.Join(syncDir, "device-a", StagingFileName))
	if err != nil {
		t.Fatalf("staging store missing: %v", err)
	}
	defer staging.Close()

	stagingCount, err := staging.GetEventCount(ctx, "window-a")
	if err != nil {
		t.Fatalf("staging bucket missing: %v", err)
	}
	if stagingCount != 2 {
		t.Errorf("staging has %d events, want 2", stagingCount)
	}

	// A second pass with nothing new is a no-op at both destinations.
	if _, err := s.Run(ctx, Options{BucketIDs: []string{"afk-b", "window-a"}}); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	count2, _ := live.GetEventCount(ctx, "afk-b-synced-from-device-b")
	if count2 != count {
		t.Errorf("second pass changed pulled count: %d -> %d", count, count2)
	}
}

func TestRun_UnreachableLiveStoreIsFatal(t *testing.T) {
	live := storetest.NewMemory("device-a")
	live.FailAll = context.DeadlineExceeded

	s := New(live, t.TempDir(), log.New(io.Discard, "", 0))
	if _, err := s.Run(context.Background(), Options{BucketIDs: []string{"x"}}); err == nil {
		t.Fatal("expected Run() to fail when the live store is unreachable")
	}
}

// Observer callbacks arrive in order and carry the pass outcome.
type recordingObserver struct {
	started   []string
	buckets   []BucketResult
	completed []*PassReport
	failed    []error
}

func (r *recordingObserver) PassStarted(deviceID string) { r.started = append(r.started, deviceID) }
func (r *recordingObserver) BucketSynced(res BucketResult) { r.buckets = append(r.buckets, res) }
func (r *recordingObserver) PassCompleted(rep *PassReport) { r.completed = append(r.completed, rep) }
func (r *recordingObserver) PassFailed(err error) { r.failed = append(r.failed, err) }

func TestRun_NotifiesObserver(t *testing.T) {
	ctx := context.Background()
	syncDir := t.TempDir()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRemote(t, syncDir, "device-b", "afk-b", 2, t0)

	live := storetest.NewMemory("device-a")
	s := New(live, syncDir, log.New(io.Discard, "", 0))

	obs := &recordingObserver{}
	s.Observer = obs

	if _, err := s.Run(ctx, Options{BucketIDs: []string{"afk-b"}}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if len(obs.started) != 1 || obs.started[0] != "device-a" {
		t.Errorf("started = %v, want [device-a]", obs.started)
	}
	if len(obs.buckets) != 1 {
		t.Fatalf("got %d bucket notifications, want 1", len(obs.buckets))
	}
	if obs.buckets[0].Store != "device-b" {
		t.Errorf("pull notification Store = %q, want device-b", obs.buckets[0].Store)
	}
	if len(obs.completed) != 1 {
		t.Errorf("got %d completions, want 1", len(obs.completed))
	}
	if len(obs.failed) != 0 {
		t.Errorf("unexpected failure notifications: %v", obs.failed)
	}
}
