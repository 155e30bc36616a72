package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "edsignal",
	Short: "Healthcare and public-signal data integration pipeline",
	Long:  "Cleans emergency-department visit records, validates data quality, engineers temporal features, and merges daily-aggregated news/forum/microblog signals into one model-ready dataset.",
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
