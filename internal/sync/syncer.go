package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/venkatasai2714/aw-sync/internal/datastore"
	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store"
)

// StoreExt is the file extension a store file must carry to be picked up
// by remote discovery. Files with other extensions in a device folder are
// ignored.
const StoreExt = ".db"

// StagingFileName is the store file each device maintains inside its own
// subfolder of the sync directory.
const StagingFileName = "store.db"

// StagingStore is the Store label carried by push results; pull results
// carry the source device id instead.
const StagingStore = "staging"

// Options configures one sync pass.
type Options struct {
	// BucketIDs is the allow-list of bucket ids to sync. An empty list
	// syncs nothing; callers must name every bucket they want moved.
	BucketIDs []string

	// Start is accepted from the CLI and recorded on the pass report,
	// but the merge ignores it: the resume point is always derived from
	// the destination's most recent event.
	Start *time.Time
}

// Remote is another device's store file found in the sync directory.
type Remote struct {
	DeviceID string
	Path     string
}

// BucketResult reports the outcome of one single-bucket merge. Store is
// StagingStore for pushes and the source device id for pulls; it is set
// before any Observer hears about the result.
type BucketResult struct {
	Store       string `json:"store"`
	SourceID    string `json:"source_id"`
	DestID      string `json:"dest_id"`
	NewEvents   int    `json:"new_events"`
	TotalEvents int    `json:"total_events"`
}

// PassReport summarizes one completed sync pass.
type PassReport struct {
	PassID   string         `json:"pass_id"`
	DeviceID string         `json:"device_id"`
	Remotes  []Remote       `json:"remotes"`
	Buckets  []BucketResult `json:"buckets"`
	Start    *time.Time     `json:"start,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Observer receives progress notifications during a pass. All methods are
// called from the pass's own goroutine; implementations must not block.
type Observer interface {
	PassStarted(deviceID string)
	BucketSynced(result BucketResult)
	PassCompleted(report *PassReport)
	PassFailed(err error)
}

// openStore opens a store file and returns the store plus its closer.
// Swapped out in tests.
type openStore func(path string) (store.AccessMethod, func() error, error)

func openDatastore(path string) (store.AccessMethod, func() error, error) {
	ds, err := datastore.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return ds, ds.Close, nil
}

// Syncer runs sync passes between the live store, the staging store, and
// the remotes found in the sync directory.
type Syncer struct {
	live    store.AccessMethod
	syncDir string
	logger  *log.Logger
	open    openStore

	// Observer, when set, is notified of pass progress. Nil is fine.
	Observer Observer
}

// New creates a Syncer for the given live store and sync directory.
// If logger is nil, a default logger writing to stderr is used.
func New(live store.AccessMethod, syncDir string, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		live:    live,
		syncDir: syncDir,
		logger:  logger,
		open:    openDatastore,
	}
}

// Run performs a single sync pass:
//
//  1. Fetch the local device id from the live store (fatal if unreachable).
//  2. Idempotently ensure this device's subfolder and staging store exist.
//  3. Discover other devices' store files in the sync directory.
//  4. Pull each remote's allow-listed buckets into the live store.
//  5. Push the live store's allow-listed buckets into the staging store.
//
// Any store or filesystem failure aborts the whole pass; events already
// merged before the failure remain in place and the next pass resumes
// after them.
func (s *Syncer) Run(ctx context.Context, opts Options) (*PassReport, error) {
	started := time.Now()

	info, err := s.live.GetInfo(ctx)
	if err != nil {
		err = fmt.Errorf("failed to get device identity: %w", err)
		s.notifyFailed(err)
		return nil, err
	}

	s.notifyStarted(info.DeviceID)

	staging, closeStaging, err := s.bootstrapStaging(info.DeviceID)
	if err != nil {
		s.notifyFailed(err)
		return nil, err
	}
	defer closeStaging()

	remotes, err := s.findRemotes(info.DeviceID)
	if err != nil {
		s.notifyFailed(err)
		return nil, err
	}
	s.logger.Printf("Found %d remote(s)", len(remotes))

	report := &PassReport{
		PassID:   uuid.NewString(),
		DeviceID: info.DeviceID,
		Remotes:  remotes,
		Start:    opts.Start,
	}

	// Pull
	for _, remote := range remotes {
		s.logger.Printf("Pulling from %s (%s)", remote.DeviceID, remote.Path)
		src, closeSrc, err := s.open(remote.Path)
		if err != nil {
			err = fmt.Errorf("failed to open remote store %s: %w", remote.Path, err)
			s.notifyFailed(err)
			return nil, err
		}

		results, err := s.SyncDatastores(ctx, src, s.live, false, remote.DeviceID, opts.BucketIDs)
		if cerr := closeSrc(); cerr != nil {
			s.logger.Printf("Warning: failed to close remote store %s: %v", remote.Path, cerr)
		}
		if err != nil {
			s.notifyFailed(err)
			return nil, err
		}
		report.Buckets = append(report.Buckets, results...)
	}

	// Push
	s.logger.Printf("Pushing to staging store")
	results, err := s.SyncDatastores(ctx, s.live, staging, true, info.DeviceID, opts.BucketIDs)
	if err != nil {
		s.notifyFailed(err)
		return nil, err
	}
	report.Buckets = append(report.Buckets, results...)

	report.Duration = time.Since(started)
	s.logger.Printf("Pass %s complete in %v: %d remote(s), %d bucket(s)",
		report.PassID, report.Duration.Round(time.Millisecond), len(report.Remotes), len(report.Buckets))
	s.notifyCompleted(report)

	return report, nil
}

// LiveInfo returns the live store's identity. An unreachable live store
// is fatal to any operation needing the device id.
func (s *Syncer) LiveInfo(ctx context.Context) (*models.Info, error) {
	info, err := s.live.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device identity: %w", err)
	}
	return info, nil
}

// bootstrapStaging ensures this device's subfolder and staging store file
// exist under the sync directory. Safe to call every pass.
func (s *Syncer) bootstrapStaging(deviceID string) (store.AccessMethod, func() error, error) {
	deviceDir := filepath.Join(s.syncDir, deviceID)
	if err := os.MkdirAll(deviceDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create device folder %s: %w", deviceDir, err)
	}

	staging, closer, err := s.open(filepath.Join(deviceDir, StagingFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open staging store: %w", err)
	}
	return staging, closer, nil
}

// findRemotes scans the sync directory's immediate subfolders for other
// devices' store files. Any file whose path contains the local device id
// is excluded; that substring check is coarse, but a device id in someone
// else's path means the folder layout is already broken in worse ways.
func (s *Syncer) findRemotes(localDeviceID string) ([]Remote, error) {
	entries, err := os.ReadDir(s.syncDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync directory %s: %w", s.syncDir, err)
	}

	var remotes []Remote
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		deviceDir := filepath.Join(s.syncDir, entry.Name())
		files, err := os.ReadDir(deviceDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list device folder %s: %w", deviceDir, err)
		}

		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != StoreExt {
				continue
			}
			path := filepath.Join(deviceDir, f.Name())
			if localDeviceID != "" && strings.Contains(path, localDeviceID) {
				continue
			}
			remotes = append(remotes, Remote{DeviceID: entry.Name(), Path: path})
		}
	}

	sort.Slice(remotes, func(i, j int) bool { return remotes[i].Path < remotes[j].Path })
	return remotes, nil
}

func (s *Syncer) notifyStarted(deviceID string) {
	if s.Observer != nil {
		s.Observer.PassStarted(deviceID)
	}
}

func (s *Syncer) notifyBucket(result BucketResult) {
	if s.Observer != nil {
		s.Observer.BucketSynced(result)
	}
}

func (s *Syncer) notifyCompleted(report *PassReport) {
	if s.Observer != nil {
		s.Observer.PassCompleted(report)
	}
}

func (s *Syncer) notifyFailed(err error) {
	if s.Observer != nil {
		s.Observer.PassFailed(err)
	}
}
