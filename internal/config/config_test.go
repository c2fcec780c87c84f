package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5600, cfg.Port)
	assert.Equal(t, "aw-sync", cfg.ClientName)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Empty(t, cfg.Buckets)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.toml")
	content := `
host = "tracker.lan"
port = 5666
sync_dir = "/mnt/shared/ActivitySync"
buckets = ["aw-watcher-afk_device-a", "aw-watcher-window_device-a"]
interval = "90s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tracker.lan", cfg.Host)
	assert.Equal(t, 5666, cfg.Port)
	assert.Equal(t, "/mnt/shared/ActivitySync", cfg.SyncDir)
	assert.Equal(t, []string{"aw-watcher-afk_device-a", "aw-watcher-window_device-a"}, cfg.Buckets)
	assert.Equal(t, 90*time.Second, cfg.Interval)
	// Keys the file omits keep their defaults.
	assert.Equal(t, "aw-sync", cfg.ClientName)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`port = 5666`), 0644))

	t.Setenv("AW_SYNC_PORT", "5700")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5700, cfg.Port)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "sync.toml")

	want := &Config{
		Host:          "localhost",
		Port:          5601,
		ClientName:    "aw-sync",
		SyncDir:       "/tmp/sync",
		Buckets:       []string{"aw-watcher-afk_device-a"},
		Interval:      2 * time.Minute,
		DashboardAddr: "localhost:8900",
	}
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Host, got.Host)
	assert.Equal(t, want.Port, got.Port)
	assert.Equal(t, want.SyncDir, got.SyncDir)
	assert.Equal(t, want.Buckets, got.Buckets)
	assert.Equal(t, want.Interval, got.Interval)
	assert.Equal(t, want.DashboardAddr, got.DashboardAddr)
}
