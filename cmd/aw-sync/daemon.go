package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/venkatasai2714/aw-sync/internal/daemon"
	"github.com/venkatasai2714/aw-sync/internal/dashboard"
	awsync "github.com/venkatasai2714/aw-sync/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run sync passes continuously",
	Long: `Run aw-sync as a daemon.

The daemon performs an initial pass, then triggers further passes when
other devices' store files change in the sync directory (debounced) and
on a fixed interval as a fallback. Passes run one at a time.

With --dashboard-addr, a WebSocket dashboard broadcasts pass progress and
serves Prometheus metrics at /metrics.

Example usage:
  aw-sync daemon --buckets aw-watcher-afk_myhost
  aw-sync daemon --interval 1m --dashboard-addr :8080 --log-file sync.log`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if cmd.Flags().Changed("interval") {
			cfg.Interval, _ = cmd.Flags().GetDuration("interval")
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile, _ = cmd.Flags().GetString("log-file")
		}
		if cmd.Flags().Changed("dashboard-addr") {
			cfg.DashboardAddr, _ = cmd.Flags().GetString("dashboard-addr")
		}

		buckets, _ := cmd.Flags().GetStringSlice("buckets")
		if len(buckets) == 0 {
			buckets = cfg.Buckets
		}
		if len(buckets) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no buckets named; pass --buckets or set them in the config\n")
			os.Exit(1)
		}

		logger := defaultLogger("[daemon] ")
		if cfg.LogFile != "" {
			logger = log.New(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}, "[daemon] ", log.LstdFlags)
		}

		syncer := newSyncer(cfg, logger)

		var dash *dashboard.Server
		if cfg.DashboardAddr != "" {
			dash = dashboard.NewServer(&dashboard.Config{Addr: cfg.DashboardAddr, Logger: logger})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			syncer.Observer = dashboard.NewHandler(dash)
			fmt.Printf("Dashboard: ws://%s/ws, metrics at /metrics\n", dash.GetAddr())
		}

		// The device id is needed so the watcher ignores this device's own
		// pushes; a live server we cannot reach is fatal before the daemon
		// even starts, matching the one-pass behavior.
		info, err := syncer.LiveInfo(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		runPass := func(ctx context.Context) (*awsync.PassReport, error) {
			return syncer.Run(ctx, awsync.Options{BucketIDs: buckets})
		}

		d, err := daemon.New(runPass, cfg.SyncDir, info.DeviceID, &daemon.Config{
			Interval:         cfg.Interval,
			DebounceInterval: daemon.DefaultConfig().DebounceInterval,
			Logger:           logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}
	},
}

func init() {
	daemonCmd.Flags().StringSlice("buckets", nil, "Bucket ids to sync (comma separated)")
	daemonCmd.Flags().Duration("interval", 0, "Interval between passes (overrides config)")
	daemonCmd.Flags().String("log-file", "", "Rotating log file (overrides config)")
	daemonCmd.Flags().String("dashboard-addr", "", "Dashboard listen address, e.g. :8080 (overrides config)")

	rootCmd.AddCommand(daemonCmd)
}
