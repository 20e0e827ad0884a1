package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Bulk Core Web Vitals audits over a spreadsheet of URLs",
	Long:  "Audits every URL in a spreadsheet with PageSpeed Insights, writes field or lab vitals back in place, and retries failed rows from pagespeed.web.dev.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
