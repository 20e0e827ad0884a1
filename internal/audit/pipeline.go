package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/vitals-cli/internal/fetcher"
	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/internal/sheet"
	"github.com/sells-group/vitals-cli/internal/store"
)

// DefaultProgressEvery is how many rows pass between progress logs.
const DefaultProgressEvery = 25

// closeTimeout bounds the final flush after the run context is done.
const closeTimeout = 2 * time.Minute

// Options configures a Pipeline run.
type Options struct {
	// Spreadsheet identifies the store in the ledger and alerts.
	Spreadsheet string
	// StartRow skips every URL above this spreadsheet row.
	StartRow           int
	Concurrency        int
	ParallelStrategies bool
	BatchRows          int
	ProgressEvery      int
	Retry              resilience.RetryPolicy
}

// QuotaReporter exposes daily quota usage for alerts and metrics.
type QuotaReporter interface {
	Used(ctx context.Context) (int64, error)
	DailyLimit() int64
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLedger records the run and every written row.
func WithLedger(l store.Store) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithAlerter evaluates the finished run against alert thresholds.
func WithAlerter(a *monitoring.Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

// WithQuota reports daily quota usage after the run.
func WithQuota(q QuotaReporter) Option {
	return func(p *Pipeline) { p.quota = q }
}

// Pipeline audits every URL in a sheet and writes results back in place.
type Pipeline struct {
	sheet   sheet.Store
	fetcher fetcher.Fetcher
	ledger  store.Store
	alerter *monitoring.Alerter
	quota   QuotaReporter
	opts    Options
}

// New creates a Pipeline.
func New(st sheet.Store, f fetcher.Fetcher, opts Options, options ...Option) *Pipeline {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	p := &Pipeline{sheet: st, fetcher: f, opts: opts}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run executes one bulk audit. Per-row failures are recorded as Error rows
// and never abort the run. An error is returned only when the URL column
// cannot be read or completed rows could not be written. A cancelled run
// returns its partial summary with ResumeRow set.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	start := time.Now()
	log := zap.L().With(zap.String("spreadsheet", p.opts.Spreadsheet))

	tasks, err := p.sheet.ReadURLs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "audit: read urls")
	}

	summary := model.NewRunSummary()
	summary.Total = len(tasks)

	pending := make([]model.URLTask, 0, len(tasks))
	rows := make([]int, 0, len(tasks))
	for _, t := range tasks {
		if t.Row < p.opts.StartRow {
			summary.Skipped++
			continue
		}
		pending = append(pending, t)
		rows = append(rows, t.Row)
	}

	log.Info("audit: starting",
		zap.Int("urls", len(tasks)),
		zap.Int("pending", len(pending)),
		zap.Int("skipped", summary.Skipped),
		zap.Int("start_row", p.opts.StartRow),
		zap.Int("workers", p.opts.Concurrency),
	)

	runID := p.createRun(ctx, model.RunKindAudit)

	writer := sheet.NewWriter(p.sheet, sheet.WriterOptions{
		StartRow:  p.opts.StartRow,
		BatchRows: p.opts.BatchRows,
		Ordered:   true,
		Retry:     p.opts.Retry,
		OnWrite:   p.recordOutcomes(runID),
	})
	writer.Expect(rows)

	// Writes outlive cancellation so completed rows are never lost.
	writeCtx := context.WithoutCancel(ctx)

	pool := NewPool(p.fetcher, PoolOptions{
		Concurrency:        p.opts.Concurrency,
		ParallelStrategies: p.opts.ParallelStrategies,
	})

	var cancelled int
	for row := range pool.Run(ctx, pending) {
		if row.Cancelled {
			cancelled++
			continue
		}

		src := row.Source()
		summary.Record(src)
		monitoring.ObserveRow(src.Tag())
		logRow(row, src)

		if err := writer.Add(writeCtx, row); err != nil {
			log.Error("audit: write failed, rows kept for the next flush", zap.Error(err))
		}

		if summary.Processed%p.opts.ProgressEvery == 0 {
			log.Info("audit: progress",
				zap.Int("processed", summary.Processed),
				zap.Int("pending", len(pending)),
				zap.Int("errors", summary.Errors()),
				zap.Int("written", writer.Written()),
			)
		}
	}

	closeCtx, cancel := context.WithTimeout(writeCtx, closeTimeout)
	defer cancel()
	writeErr := writer.Close(closeCtx)

	summary.DurationMs = time.Since(start).Milliseconds()

	status := model.RunStatusComplete
	switch {
	case writeErr != nil:
		status = model.RunStatusFailed
		summary.ResumeRow = writer.NextUnwritten()
	case ctx.Err() != nil:
		status = model.RunStatusCancelled
		summary.ResumeRow = writer.NextUnwritten()
		log.Warn("audit: cancelled",
			zap.Int("not_started", cancelled),
			zap.Int("resume_row", summary.ResumeRow),
		)
	}

	errMsg := ""
	if writeErr != nil {
		errMsg = writeErr.Error()
	}
	p.finishRun(writeCtx, runID, model.RunKindAudit, status, summary, errMsg)
	LogSummary("audit", summary)

	if writeErr != nil {
		return summary, eris.Wrap(writeErr, "audit: write results")
	}
	return summary, nil
}

func (p *Pipeline) createRun(ctx context.Context, kind model.RunKind) string {
	if p.ledger == nil {
		return ""
	}
	run, err := p.ledger.CreateRun(ctx, kind, p.opts.Spreadsheet)
	if err != nil {
		zap.L().Warn("audit: ledger unavailable, run not recorded", zap.Error(err))
		return ""
	}
	return run.ID
}

func (p *Pipeline) recordOutcomes(runID string) func(context.Context, []model.AuditRow) {
	if p.ledger == nil || runID == "" {
		return nil
	}
	return func(ctx context.Context, rows []model.AuditRow) {
		outcomes := make([]model.RowOutcome, len(rows))
		for i, r := range rows {
			outcomes[i] = model.OutcomeFor(runID, r, r.Source())
		}
		if err := p.ledger.SaveOutcomes(ctx, outcomes); err != nil {
			zap.L().Warn("audit: save outcomes", zap.String("run_id", runID), zap.Error(err))
		}
	}
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, kind model.RunKind, status model.RunStatus, summary *model.RunSummary, errMsg string) {
	if p.ledger != nil && runID != "" {
		if err := p.ledger.UpdateRunResult(ctx, runID, status, summary, errMsg); err != nil {
			zap.L().Warn("audit: update run", zap.String("run_id", runID), zap.Error(err))
		}
	}

	report := monitoring.RunReport{
		RunID:       runID,
		Kind:        kind,
		Spreadsheet: p.opts.Spreadsheet,
		Status:      status,
		Summary:     summary,
		Err:         errMsg,
	}
	if p.quota != nil {
		if used, err := p.quota.Used(ctx); err == nil {
			report.QuotaUsed = used
			report.QuotaLimit = p.quota.DailyLimit()
			monitoring.SetQuotaUsed(used)
		}
	}
	if p.alerter != nil {
		p.alerter.Notify(ctx, report)
	}
}

func logRow(row model.AuditRow, src model.Source) {
	zap.L().Info(fmt.Sprintf("M:%s D:%s [%s]", lcpLabel(row.Mobile), lcpLabel(row.Desktop), src.Tag()),
		zap.Int("row", row.Task.Row),
		zap.String("url", row.Task.URL),
	)
	if msg := row.Err(); msg != "" {
		zap.L().Debug("audit: row error", zap.Int("row", row.Task.Row), zap.String("error", msg))
	}
}

func lcpLabel(r model.StrategyResult) string {
	if r.Failed() {
		return "ERR"
	}
	v, ok := r.Value(model.MetricLCP)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2fs", v)
}

// LogSummary logs the end-of-run counts with thousands separators.
func LogSummary(kind string, s *model.RunSummary) {
	p := message.NewPrinter(language.English)
	zap.L().Info(p.Sprintf("%s complete: %d of %d rows (%d skipped) in %s", kind,
		s.Processed, s.Total, s.Skipped, (time.Duration(s.DurationMs)*time.Millisecond).Round(time.Second)),
		zap.String("field", p.Sprintf("%d", s.BySource[model.SourceField])),
		zap.String("lab", p.Sprintf("%d", s.BySource[model.SourceLab])),
		zap.String("web_dev", p.Sprintf("%d", s.BySource[model.SourceBrowser])),
		zap.String("error", p.Sprintf("%d", s.BySource[model.SourceError])),
	)
}
