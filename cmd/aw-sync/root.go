package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/venkatasai2714/aw-sync/internal/client"
	"github.com/venkatasai2714/aw-sync/internal/config"
	"github.com/venkatasai2714/aw-sync/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "aw-sync",
	Short: "Folder-based synchronization for activity-event buckets",
	Long: `aw-sync moves activity-event buckets between devices through a shared
directory, without any peer-to-peer networking.

Each device exports its live server's buckets into its own subfolder of
the sync directory and imports every other device's exports. Replicating
the directory between machines is left to a folder synchronizer such as
Syncthing or Dropbox.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: sync.toml in the user config dir)")
	rootCmd.PersistentFlags().String("host", "", "Live server host (overrides config)")
	rootCmd.PersistentFlags().Int("port", 0, "Live server port (overrides config)")
	rootCmd.PersistentFlags().String("sync-dir", "", "Shared sync directory (overrides config)")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("sync-dir") {
		cfg.SyncDir, _ = cmd.Flags().GetString("sync-dir")
	}

	return cfg, nil
}

// newSyncer wires a syncer against the live server named by the config.
func newSyncer(cfg *config.Config, logger *log.Logger) *sync.Syncer {
	live := client.New(cfg.Host, cfg.Port, cfg.ClientName)
	return sync.New(live, cfg.SyncDir, logger)
}

func defaultLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
