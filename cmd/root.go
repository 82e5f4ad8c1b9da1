package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openvariant/tranchefilter/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tranchefilter",
	Short: "Apply trained quality tranches to a variant callset",
	Long:  "Joins a coordinate-sorted callset with its recalibration stream, classifies every call against a tranche table, and writes the callset with PASS or tranche filters applied.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
