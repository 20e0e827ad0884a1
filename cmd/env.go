package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/fetcher"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/internal/sheet"
	"github.com/sells-group/vitals-cli/internal/store"
	"github.com/sells-group/vitals-cli/pkg/pagespeed"
	"github.com/sells-group/vitals-cli/pkg/sheets"
)

// Credential flags shared by audit and recover.
var (
	credentialsFile string
	tokenFile       string
	sheetName       string
)

func addSheetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&credentialsFile, "credentials", "", "service account JSON key for Google Sheets")
	cmd.Flags().StringVar(&tokenFile, "token", "", "OAuth token file with client_id, client_secret and refresh_token")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "sheet (tab) name; defaults to the first sheet")
}

func applySheetFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("credentials") {
		cfg.Sheets.CredentialsFile = credentialsFile
		cfg.Sheets.TokenFile = ""
	}
	if cmd.Flags().Changed("token") {
		cfg.Sheets.TokenFile = tokenFile
		if !cmd.Flags().Changed("credentials") {
			cfg.Sheets.CredentialsFile = ""
		}
	}
	if cmd.Flags().Changed("sheet") {
		cfg.Sheets.SheetName = sheetName
	}
}

// isXLSX reports whether a spreadsheet argument names a local workbook.
func isXLSX(id string) bool {
	return strings.EqualFold(filepath.Ext(id), ".xlsx")
}

// initSheet opens the spreadsheet named by id: a local .xlsx workbook or a
// Google Sheets spreadsheet id.
func initSheet(ctx context.Context, id string) (sheet.Store, error) {
	if isXLSX(id) {
		return sheet.OpenXLSX(id, cfg.Sheets.SheetName)
	}

	var opts []sheets.Option
	switch {
	case cfg.Sheets.CredentialsFile != "":
		opts = append(opts, sheets.WithServiceAccountFile(cfg.Sheets.CredentialsFile))
	case cfg.Sheets.TokenFile != "":
		opts = append(opts, sheets.WithTokenFile(cfg.Sheets.TokenFile))
	}
	if cfg.Sheets.BaseURL != "" {
		opts = append(opts, sheets.WithBaseURL(cfg.Sheets.BaseURL))
	}

	client, err := sheets.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "init sheets client")
	}
	return sheet.OpenGoogle(ctx, client, id, cfg.Sheets.SheetName)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "vitals.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLedger opens and migrates the run ledger. It returns nil when the
// ledger is disabled; an unreachable ledger is logged and skipped so audits
// never depend on it.
func initLedger(ctx context.Context) store.Store {
	if cfg.Store.Driver == "" || cfg.Store.Driver == "none" {
		return nil
	}
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run ledger unavailable", zap.Error(err))
		return nil
	}
	if err := st.Migrate(ctx); err != nil {
		zap.L().Warn("run ledger migration failed", zap.Error(err))
		_ = st.Close()
		return nil
	}
	return st
}

// initQuota returns the daily quota counter and a function releasing it.
func initQuota(ctx context.Context) (fetcher.QuotaCounter, func(), error) {
	switch cfg.Quota.Backend {
	case "", "memory":
		return fetcher.NewMemoryQuota(), func() {}, nil
	case "redis":
		q, client, err := fetcher.DialRedisQuota(ctx, cfg.Quota.RedisURL, cfg.Quota.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = client.Close() }, nil
	default:
		return nil, nil, eris.Errorf("unsupported quota backend: %s", cfg.Quota.Backend)
	}
}

// initFetcher builds the rate-limited PageSpeed fetcher and its shared budget.
func initFetcher(ctx context.Context) (*fetcher.PageSpeed, *fetcher.Budget, func(), error) {
	client, err := pagespeed.NewClient(cfg.PageSpeed.Key, pagespeed.WithBaseURL(cfg.PageSpeed.BaseURL))
	if err != nil {
		return nil, nil, nil, err
	}

	quota, release, err := initQuota(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	budget := fetcher.NewBudget(fetcher.BudgetOptions{
		WindowLimit: cfg.PageSpeed.WindowLimit,
		Window:      time.Duration(cfg.PageSpeed.WindowSecs) * time.Second,
		Burst:       cfg.PageSpeed.Burst,
		DailyLimit:  int64(cfg.PageSpeed.DailyLimit),
		Quota:       quota,
	})

	bc := resilience.BreakerFromConfig(cfg.Circuit)
	bc.ShouldTrip = fetcher.ShouldTrip
	bc.OnStateChange = func(from, to resilience.CircuitState) {
		monitoring.SetBreakerState(int(to))
		zap.L().Warn("pagespeed circuit breaker",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	f := fetcher.NewPageSpeed(client, budget, fetcher.Options{
		Timeout: time.Duration(cfg.PageSpeed.TimeoutSecs) * time.Second,
		Breaker: resilience.NewBreaker(bc),
	})
	return f, budget, release, nil
}

// startMetrics serves /metrics in the background until ctx is done.
func startMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := monitoring.Serve(ctx, addr); err != nil {
			zap.L().Error("metrics server stopped", zap.Error(err))
		}
	}()
}
