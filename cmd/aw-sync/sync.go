package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	awsync "github.com/venkatasai2714/aw-sync/internal/sync"
	"github.com/venkatasai2714/aw-sync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass",
	Long: `Run a single sync pass:

  1. Ensure this device's staging store exists in the sync directory
  2. Discover other devices' store files
  3. Pull each remote's allow-listed buckets into the live server
  4. Push the live server's allow-listed buckets into the staging store

Buckets must be named explicitly with --buckets; an empty allow-list
syncs nothing.

Example usage:
  aw-sync sync --buckets aw-watcher-afk_myhost,aw-watcher-window_myhost
  aw-sync sync --buckets aw-watcher-afk_myhost --start "yesterday"`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		buckets, _ := cmd.Flags().GetStringSlice("buckets")
		if len(buckets) == 0 {
			buckets = cfg.Buckets
		}
		if len(buckets) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no buckets named; pass --buckets or set them in the config\n")
			os.Exit(1)
		}

		opts := awsync.Options{BucketIDs: buckets}
		if startStr, _ := cmd.Flags().GetString("start"); startStr != "" {
			start, err := parseStart(startStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			opts.Start = start
		}

		syncer := newSyncer(cfg, defaultLogger("[sync] "))

		began := time.Now()
		report, err := syncer.Run(context.Background(), opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync pass failed: %v\n", err)
			os.Exit(1)
		}

		newEvents := 0
		for _, b := range report.Buckets {
			newEvents += b.NewEvents
		}

		fmt.Printf("%s Pass complete in %v\n", ui.RenderPass("✓"), time.Since(began).Round(time.Millisecond))
		fmt.Printf("   Remotes: %d\n", len(report.Remotes))
		fmt.Printf("   Buckets: %d\n", len(report.Buckets))
		fmt.Printf("   New events: %d\n", newEvents)
	},
}

// parseStart accepts RFC3339 or natural language ("yesterday", "2 days ago").
func parseStart(s string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil || r == nil {
		return nil, fmt.Errorf("could not parse start time %q", s)
	}
	return &r.Time, nil
}

func init() {
	syncCmd.Flags().StringSlice("buckets", nil, "Bucket ids to sync (comma separated)")
	syncCmd.Flags().String("start", "", "Start time filter (RFC3339 or natural language; recorded, not yet applied)")

	rootCmd.AddCommand(syncCmd)
}
