package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	awsync "github.com/venkatasai2714/aw-sync/internal/sync"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every store's buckets and event counts",
	Long: `Print a read-only report of every store this device can see: the live
server, its own staging store, and each remote found in the sync
directory. Any failing store call aborts the whole report.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		syncer := newSyncer(cfg, defaultLogger("[list] "))

		listing, err := syncer.ListBuckets(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(awsync.FormatListing(listing))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
