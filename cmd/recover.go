package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/recovery"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/pkg/webdev"
)

var (
	recoverSettle time.Duration
	recoverPause  time.Duration
)

var recoverCmd = &cobra.Command{
	Use:   "recover <spreadsheet-id|file.xlsx>",
	Short: "Retry Error rows by reading the pagespeed.web.dev report",
	Long: `Finds rows tagged Error, opens the pagespeed.web.dev analysis for each URL
in headless Chrome, and rewrites the row with the real-user metrics shown
there, tagged Web.dev. Rows that still have no data stay Error. Other rows
are never touched, so the command can be run repeatedly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applySheetFlags(cmd)
		if cmd.Flags().Changed("settle") {
			cfg.Browser.SettleSecs = int(recoverSettle / time.Second)
		}
		if cmd.Flags().Changed("pause") {
			cfg.Browser.PauseSecs = int(recoverPause / time.Second)
		}
		if err := cfg.Validate("recover"); err != nil {
			return err
		}

		spreadsheet := args[0]
		st, err := initSheet(ctx, spreadsheet)
		if err != nil {
			return eris.Wrap(err, "open spreadsheet")
		}

		scraper := webdev.New(webdev.Config{
			BaseURL:           cfg.Browser.BaseURL,
			ExecPath:          cfg.Browser.ExecPath,
			Headless:          cfg.Browser.Headless,
			NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
			Settle:            explicitDuration(cfg.Browser.SettleSecs),
		})
		defer scraper.Close()

		options := []recovery.Option{
			recovery.WithAlerter(monitoring.NewAlerter(cfg.Monitoring)),
		}
		if ledger := initLedger(ctx); ledger != nil {
			defer ledger.Close() //nolint:errcheck
			options = append(options, recovery.WithLedger(ledger))
		}

		r := recovery.New(st, scraper, recovery.Options{
			Spreadsheet: spreadsheet,
			Pause:       explicitDuration(cfg.Browser.PauseSecs),
			Retry:       resilience.PolicyFromConfig(cfg.Retry),
		}, options...)

		_, err = r.Run(ctx)
		return err
	},
}

// explicitDuration maps configured seconds to a duration where zero means
// "none" rather than "use the default".
func explicitDuration(secs int) time.Duration {
	if secs <= 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}

func init() {
	recoverCmd.Flags().DurationVar(&recoverSettle, "settle", webdev.DefaultSettle, "wait for the web.dev analysis to finish")
	recoverCmd.Flags().DurationVar(&recoverPause, "pause", recovery.DefaultPause, "pause between scrapes")
	addSheetFlags(recoverCmd)
	rootCmd.AddCommand(recoverCmd)
}
