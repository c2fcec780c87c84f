// Package daemon runs sync passes continuously.
//
// The daemon:
//  1. Performs an initial pass on startup
//  2. Watches the sync directory for other devices' store files changing
//  3. Debounces bursts of file events into a single pass
//  4. Runs a periodic pass as a fallback when the watcher stays quiet
//  5. Handles graceful shutdown
//
// Passes are serialized through one loop: at most one pass runs at a time,
// matching the engine's single-pass-per-device assumption.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	awsync "github.com/venkatasai2714/aw-sync/internal/sync"
)

// PassFunc runs one sync pass. The daemon does not interpret the report
// beyond logging; observers attached to the syncer see the details.
type PassFunc func(ctx context.Context) (*awsync.PassReport, error)

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often to run a pass regardless of file events.
	Interval time.Duration

	// DebounceInterval is how long to wait after a file event before
	// triggering a pass. This batches rapid updates together, e.g. a
	// folder synchronizer writing a store file in several chunks.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches the sync directory and triggers sync passes.
type Daemon struct {
	runPass  PassFunc
	syncDir  string
	deviceID string
	config   *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> last event time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	trigger chan struct{}
}

// New creates a new Daemon instance.
//
// deviceID is this device's id; events under its own subfolder are ignored
// so the daemon does not react to its own pushes.
func New(runPass PassFunc, syncDir, deviceID string, config *Config) (*Daemon, error) {
	if runPass == nil {
		return nil, fmt.Errorf("runPass cannot be nil")
	}
	if syncDir == "" {
		return nil, fmt.Errorf("syncDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	// Tickers panic on non-positive periods, so zero or negative values
	// from flags or the config file fall back to the defaults.
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		runPass:     runPass,
		syncDir:     syncDir,
		deviceID:    deviceID,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
		trigger:     make(chan struct{}, 1),
	}, nil
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled or the initial pass fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Initial pass. A failing first pass usually means misconfiguration
	// (unreachable live server, unreadable sync dir), so bail out early
	// rather than retrying forever.
	if _, err := d.runPass(ctx); err != nil {
		return fmt.Errorf("initial sync pass failed: %w", err)
	}

	if err := d.watchSyncDir(); err != nil {
		return err
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			return d.Stop()

		case <-d.ctx.Done():
			return nil

		case <-ticker.C:
			d.pass(ctx, "interval")

		case <-d.trigger:
			d.pass(ctx, "file change")
		}
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// pass runs one sync pass; failures are logged, never fatal to the loop.
// A corrupt remote should not take the daemon down with it.
func (d *Daemon) pass(ctx context.Context, reason string) {
	d.config.Logger.Printf("Running sync pass (%s)", reason)
	if _, err := d.runPass(ctx); err != nil {
		d.config.Logger.Printf("Sync pass failed: %v", err)
	}
}

// watchSyncDir adds the sync directory and each existing device subfolder
// to the watcher. New subfolders are picked up from create events.
func (d *Daemon) watchSyncDir() error {
	if err := d.watcher.Add(d.syncDir); err != nil {
		return fmt.Errorf("failed to watch sync directory %s: %w", d.syncDir, err)
	}

	entries, err := os.ReadDir(d.syncDir)
	if err != nil {
		return fmt.Errorf("failed to list sync directory %s: %w", d.syncDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == d.deviceID {
			continue
		}
		dir := filepath.Join(d.syncDir, entry.Name())
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch device folder %s: %w", dir, err)
		}
	}

	d.config.Logger.Printf("Watching: %s", d.syncDir)
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(event)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// A new device folder appearing means a new remote to watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if filepath.Base(event.Name) != d.deviceID {
				if err := d.watcher.Add(event.Name); err != nil {
					d.config.Logger.Printf("Failed to watch new folder %s: %v", event.Name, err)
				} else {
					d.config.Logger.Printf("Watching new device folder: %s", event.Name)
				}
			}
			return
		}
	}

	if filepath.Ext(event.Name) != awsync.StoreExt {
		return
	}
	if d.isOwnFolder(event.Name) {
		return
	}

	d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
	d.queueChange(event.Name)
}

// isOwnFolder reports whether the path is inside this device's subfolder.
func (d *Daemon) isOwnFolder(path string) bool {
	if d.deviceID == "" {
		return false
	}
	rel, err := filepath.Rel(d.syncDir, path)
	if err != nil {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	return len(parts) > 0 && parts[0] == d.deviceID
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue triggers a pass once queued changes settle.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.drainSettledChanges() {
				select {
				case d.trigger <- struct{}{}:
				default:
					// A pass is already pending; the queued changes are
					// covered by it.
				}
			}
		}
	}
}

// drainSettledChanges removes changes older than the debounce interval and
// reports whether any were drained.
func (d *Daemon) drainSettledChanges() bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	drained := false
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		drained = true
	}
	return drained
}
