package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/audit"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/internal/sheet"
)

var (
	auditStart       int
	auditWorkers     int
	auditAPIKey      string
	auditBatchRows   int
	auditMetricsAddr string
)

var auditCmd = &cobra.Command{
	Use:   "audit <spreadsheet-id|file.xlsx>",
	Short: "Audit every URL in column A and write vitals to columns B-N",
	Long: `Reads URLs from column A starting at row 2, fetches mobile and desktop
PageSpeed Insights results for each, and writes LCP, CLS, INP, FCP, TTFB and
the assessment for both strategies plus a source tag (Field, Lab, Error).

Rows that fail are tagged Error; run "vitals recover" afterwards to retry
them from pagespeed.web.dev. --start skips the first N URLs (row = N+2) to
resume an interrupted run.

Exits 0 when every row was written, including rows tagged Error, and when
interrupted. Exits non-zero when the spreadsheet cannot be read or opened,
or when it stops accepting writes after retries; completed rows are kept
and the --start value to resume from is logged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applySheetFlags(cmd)
		applyAuditFlags(cmd)
		if err := cfg.Validate("audit"); err != nil {
			return err
		}
		if auditStart < 0 {
			return eris.New("--start must be >= 0")
		}

		spreadsheet := args[0]
		st, err := initSheet(ctx, spreadsheet)
		if err != nil {
			return eris.Wrap(err, "open spreadsheet")
		}

		f, budget, release, err := initFetcher(ctx)
		if err != nil {
			return eris.Wrap(err, "init pagespeed")
		}
		defer release()

		startMetrics(ctx, cfg.Monitoring.MetricsAddr)

		options := []audit.Option{
			audit.WithQuota(budget),
			audit.WithAlerter(monitoring.NewAlerter(cfg.Monitoring)),
		}
		if ledger := initLedger(ctx); ledger != nil {
			defer ledger.Close() //nolint:errcheck
			options = append(options, audit.WithLedger(ledger))
		}

		p := audit.New(st, f, audit.Options{
			Spreadsheet:        spreadsheet,
			StartRow:           startRow(auditStart),
			Concurrency:        cfg.Audit.Workers,
			ParallelStrategies: cfg.Audit.ParallelStrategies,
			BatchRows:          cfg.Audit.BatchRows,
			ProgressEvery:      cfg.Audit.ProgressEvery,
			Retry:              resilience.PolicyFromConfig(cfg.Retry),
		}, options...)

		summary, err := p.Run(ctx)
		if summary != nil && summary.ResumeRow > 0 {
			zap.L().Warn("audit stopped early; rerun with --start to resume",
				zap.Int("start", startIndex(summary.ResumeRow)),
				zap.Int("row", summary.ResumeRow),
			)
		}
		return err
	},
}

// startRow converts a 0-based URL index into a spreadsheet row.
func startRow(index int) int {
	return sheet.FirstDataRow + index
}

// startIndex converts a spreadsheet row back into a --start value.
func startIndex(row int) int {
	return row - sheet.FirstDataRow
}

func applyAuditFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("workers") {
		cfg.Audit.Workers = auditWorkers
	}
	if cmd.Flags().Changed("api-key") {
		cfg.PageSpeed.Key = auditAPIKey
	}
	if cmd.Flags().Changed("batch-rows") {
		cfg.Audit.BatchRows = auditBatchRows
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Monitoring.MetricsAddr = auditMetricsAddr
	}
}

func init() {
	auditCmd.Flags().IntVar(&auditStart, "start", 0, "0-based URL index to resume from (row = start+2)")
	auditCmd.Flags().IntVar(&auditWorkers, "workers", audit.DefaultConcurrency, "URLs audited concurrently")
	auditCmd.Flags().StringVar(&auditAPIKey, "api-key", "", "PageSpeed Insights API key (overrides GOOGLE_PAGESPEED_API_TOKEN)")
	auditCmd.Flags().IntVar(&auditBatchRows, "batch-rows", sheet.DefaultBatchRows, "rows per spreadsheet write")
	auditCmd.Flags().StringVar(&auditMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	addSheetFlags(auditCmd)
	rootCmd.AddCommand(auditCmd)
}
