package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/venkatasai2714/aw-sync/internal/seed"
	"github.com/venkatasai2714/aw-sync/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:    "seed <fixture.yaml>",
	Short:  "Create fixture remotes in the sync directory (dev tool)",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fixture, err := seed.LoadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := seed.Apply(context.Background(), cfg.SyncDir, fixture); err != nil {
			fmt.Fprintf(os.Stderr, "Error: seeding failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Seeded %d fixture device(s) into %s\n",
			ui.RenderPass("✓"), len(fixture.Devices), cfg.SyncDir)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
