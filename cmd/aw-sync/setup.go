package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/venkatasai2714/aw-sync/internal/config"
	"github.com/venkatasai2714/aw-sync/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write the config file",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Default()

		portStr := strconv.Itoa(cfg.Port)
		bucketsStr := strings.Join(cfg.Buckets, ",")

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Live server host").
					Value(&cfg.Host),
				huh.NewInput().
					Title("Live server port").
					Value(&portStr).
					Validate(func(s string) error {
						if _, err := strconv.Atoi(s); err != nil {
							return fmt.Errorf("port must be a number")
						}
						return nil
					}),
				huh.NewInput().
					Title("Sync directory").
					Description("The shared folder your synchronizer replicates between devices").
					Value(&cfg.SyncDir),
				huh.NewInput().
					Title("Buckets to sync").
					Description("Comma-separated bucket ids; leave empty to name them per run").
					Value(&bucketsStr),
			),
		)

		if err := form.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg.Port, _ = strconv.Atoi(portStr)
		cfg.Buckets = nil
		for _, b := range strings.Split(bucketsStr, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Buckets = append(cfg.Buckets, b)
			}
		}

		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			path = p
		}

		if err := cfg.Save(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
