// Package seed creates fixture remotes in a sync directory from YAML
// descriptions. It exists for development and tests: a populated sync
// folder lets a pass be exercised without a second physical device.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/venkatasai2714/aw-sync/internal/datastore"
	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/sync"
)

// Fixture describes a set of fake devices and their store contents.
type Fixture struct {
	// Base is the instant event offsets are relative to. Zero means
	// "now, truncated to the second" so repeated seeding stays readable.
	Base    time.Time       `yaml:"base"`
	Devices []DeviceFixture `yaml:"devices"`
}

// DeviceFixture is one fake device's store.
type DeviceFixture struct {
	DeviceID string          `yaml:"device_id"`
	Buckets  []BucketFixture `yaml:"buckets"`
}

// BucketFixture is one bucket and its events. Events may be listed
// explicitly or generated as a regular series.
type BucketFixture struct {
	ID       string          `yaml:"id"`
	Type     string          `yaml:"type"`
	Client   string          `yaml:"client"`
	Hostname string          `yaml:"hostname"`
	Events   []EventFixture  `yaml:"events"`
	Generate *GenerateSeries `yaml:"generate"`
}

// EventFixture is one event, positioned relative to the fixture base.
type EventFixture struct {
	Offset   time.Duration  `yaml:"offset"`
	Duration time.Duration  `yaml:"duration"`
	Data     map[string]any `yaml:"data"`
}

// GenerateSeries produces Count events starting at the fixture base,
// spaced Step apart, each lasting Duration.
type GenerateSeries struct {
	Count    int           `yaml:"count"`
	Step     time.Duration `yaml:"step"`
	Duration time.Duration `yaml:"duration"`
}

// Load parses a fixture from YAML.
func Load(r []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(r, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for _, d := range f.Devices {
		if d.DeviceID == "" {
			return nil, fmt.Errorf("fixture device without device_id")
		}
		for _, b := range d.Buckets {
			if b.ID == "" {
				return nil, fmt.Errorf("fixture bucket without id in device %s", d.DeviceID)
			}
		}
	}
	return &f, nil
}

// LoadFile parses a fixture from a YAML file.
func LoadFile(path string) (*Fixture, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Load(data)
}

// Apply materializes the fixture's devices as store files under dir,
// following the <dir>/<device_id>/store.db layout a real pass discovers.
// Buckets that already exist keep their contents; events are appended.
func Apply(ctx context.Context, dir string, f *Fixture) error {
	base := f.Base
	if base.IsZero() {
		base = time.Now().UTC().Truncate(time.Second)
	}

	for _, device := range f.Devices {
		path := filepath.Join(dir, device.DeviceID, sync.StagingFileName)
		ds, err := datastore.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open fixture store for %s: %w", device.DeviceID, err)
		}

		if err := applyDevice(ctx, ds, device, base); err != nil {
			_ = ds.Close()
			return err
		}
		if err := ds.Close(); err != nil {
			return fmt.Errorf("failed to close fixture store for %s: %w", device.DeviceID, err)
		}
	}
	return nil
}

func applyDevice(ctx context.Context, ds *datastore.Datastore, device DeviceFixture, base time.Time) error {
	for _, bf := range device.Buckets {
		hostname := bf.Hostname
		if hostname == "" {
			hostname = device.DeviceID
		}

		bucket := &models.Bucket{
			ID:       bf.ID,
			Type:     bf.Type,
			Client:   bf.Client,
			Hostname: hostname,
		}
		if err := ds.CreateBucket(ctx, bucket); err != nil {
			// Tolerate re-seeding into an existing store.
			if _, getErr := ds.GetBucket(ctx, bf.ID); getErr != nil {
				return fmt.Errorf("failed to create fixture bucket %s: %w", bf.ID, err)
			}
		}

		var events []*models.Event
		for _, ef := range bf.Events {
			events = append(events, &models.Event{
				Timestamp: base.Add(ef.Offset),
				Duration:  ef.Duration,
				Data:      ef.Data,
			})
		}
		if bf.Generate != nil {
			events = append(events, GenerateEvents(bf.Generate.Count, base, bf.Generate.Step, bf.Generate.Duration)...)
		}

		if len(events) > 0 {
			models.SortEventsByTimestamp(events)
			if err := ds.InsertEvents(ctx, bf.ID, events); err != nil {
				return fmt.Errorf("failed to insert fixture events into %s: %w", bf.ID, err)
			}
		}
	}
	return nil
}

// GenerateEvents returns n events starting at start, spaced step apart.
// Each event's data carries its index so events stay distinguishable.
func GenerateEvents(n int, start time.Time, step, duration time.Duration) []*models.Event {
	events := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, &models.Event{
			Timestamp: start.Add(time.Duration(i) * step),
			Duration:  duration,
			Data:      map[string]any{"seq": i},
		})
	}
	return events
}
