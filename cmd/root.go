package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "resale-estimator",
	Short: "HDB resale price estimator",
	Long: `Builds location features from reference datasets around a flat and scores
them with a trained model to estimate its resale price.

  estimate   price a single flat from the command line
  serve      expose estimates over HTTP
  refdata    import or check the reference datasets`,
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
