package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	awsync "github.com/venkatasai2714/aw-sync/internal/sync"
)

func testConfig() *Config {
	return &Config{
		Interval:         time.Hour, // keep the ticker out of the way
		DebounceInterval: 50 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// countingPass returns a PassFunc and a counter of completed passes.
func countingPass() (PassFunc, *atomic.Int64) {
	var count atomic.Int64
	return func(ctx context.Context) (*awsync.PassReport, error) {
		count.Add(1)
		return &awsync.PassReport{}, nil
	}, &count
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestNew_Validation(t *testing.T) {
	pass, _ := countingPass()

	if _, err := New(nil, t.TempDir(), "device-a", testConfig()); err == nil {
		t.Error("New() accepted nil pass func")
	}
	if _, err := New(pass, "", "device-a", testConfig()); err == nil {
		t.Error("New() accepted empty sync dir")
	}
}

// Zero intervals would panic the run-loop tickers, so New must replace
// them with the defaults.
func TestNew_NonPositiveIntervalsUseDefaults(t *testing.T) {
	pass, count := countingPass()

	d, err := New(pass, t.TempDir(), "device-a", &Config{
		Interval:         0,
		DebounceInterval: -time.Second,
		Logger:           log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if d.config.Interval != DefaultConfig().Interval {
		t.Errorf("Interval = %v, want %v", d.config.Interval, DefaultConfig().Interval)
	}
	if d.config.DebounceInterval != DefaultConfig().DebounceInterval {
		t.Errorf("DebounceInterval = %v, want %v", d.config.DebounceInterval, DefaultConfig().DebounceInterval)
	}

	// Starting with the defaulted config must not panic.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 1 }) {
		t.Fatal("initial pass never ran")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned error on shutdown: %v", err)
	}
}

func TestStart_InitialPassFailureIsFatal(t *testing.T) {
	failing := func(ctx context.Context) (*awsync.PassReport, error) {
		return nil, errors.New("live server unreachable")
	}

	d, err := New(failing, t.TempDir(), "device-a", testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	err = d.Start(context.Background())
	if err == nil {
		t.Fatal("Start() succeeded despite failing initial pass")
	}
}

func TestStart_FileChangeTriggersPass(t *testing.T) {
	syncDir := t.TempDir()
	remoteDir := filepath.Join(syncDir, "device-b")
	if err := os.MkdirAll(remoteDir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}

	pass, count := countingPass()
	d, err := New(pass, syncDir, "device-a", testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Wait for the initial pass before poking the filesystem.
	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 1 }) {
		t.Fatal("initial pass never ran")
	}

	if err := os.WriteFile(filepath.Join(remoteDir, "store.db"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 2 }) {
		t.Fatalf("file change never triggered a pass; passes = %d", count.Load())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned error on shutdown: %v", err)
	}
}

func TestStart_IgnoresOwnFolderAndOtherFiles(t *testing.T) {
	syncDir := t.TempDir()
	ownDir := filepath.Join(syncDir, "device-a")
	remoteDir := filepath.Join(syncDir, "device-b")
	for _, dir := range []string{ownDir, remoteDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("MkdirAll() failed: %v", err)
		}
	}

	pass, count := countingPass()
	d, err := New(pass, syncDir, "device-a", testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 1 }) {
		t.Fatal("initial pass never ran")
	}

	// Our own pushes and unrelated files must not cause passes.
	if err := os.WriteFile(filepath.Join(ownDir, "store.db"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(remoteDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("passes = %d, want 1 (only the initial pass)", got)
	}

	cancel()
	<-done
}

func TestStart_WatchesNewDeviceFolders(t *testing.T) {
	syncDir := t.TempDir()

	pass, count := countingPass()
	d, err := New(pass, syncDir, "device-a", testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 1 }) {
		t.Fatal("initial pass never ran")
	}

	// A device folder appearing after startup must still be watched.
	remoteDir := filepath.Join(syncDir, "device-c")
	if err := os.MkdirAll(remoteDir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	// Give the watcher a moment to register the new folder.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(remoteDir, "store.db"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 2 }) {
		t.Fatalf("change in new device folder never triggered a pass; passes = %d", count.Load())
	}

	cancel()
	<-done
}

func TestDaemon_PassFailuresDoNotStopLoop(t *testing.T) {
	syncDir := t.TempDir()
	remoteDir := filepath.Join(syncDir, "device-b")
	if err := os.MkdirAll(remoteDir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}

	var count atomic.Int64
	flaky := func(ctx context.Context) (*awsync.PassReport, error) {
		n := count.Add(1)
		if n > 1 {
			return nil, errors.New("remote store corrupt")
		}
		return &awsync.PassReport{}, nil
	}

	d, err := New(flaky, syncDir, "device-a", testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 1 }) {
		t.Fatal("initial pass never ran")
	}

	if err := os.WriteFile(filepath.Join(remoteDir, "store.db"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 2 }) {
		t.Fatal("failing pass never ran")
	}

	// The loop must survive the failure and keep accepting triggers.
	if err := os.WriteFile(filepath.Join(remoteDir, "store.db"), []byte("xx"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return count.Load() >= 3 }) {
		t.Fatalf("loop stopped after a failing pass; passes = %d", count.Load())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned error on shutdown: %v", err)
	}
}
