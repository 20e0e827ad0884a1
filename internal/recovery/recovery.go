// Package recovery retries Error rows by reading the public pagespeed.web.dev
// report in a browser and patching only those rows.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/internal/sheet"
	"github.com/sells-group/vitals-cli/internal/store"
)

// DefaultPause is the wait between consecutive scrapes.
const DefaultPause = 5 * time.Second

const closeTimeout = time.Minute

// Scraper returns the visible text of a web.dev analysis page for url.
type Scraper interface {
	Scrape(ctx context.Context, url, formFactor string) (string, error)
}

// Options configures a Recoverer.
type Options struct {
	Spreadsheet string
	Pause       time.Duration
	Retry       resilience.RetryPolicy
}

// Option customizes a Recoverer.
type Option func(*Recoverer)

// WithLedger records the recovery run and every patched row.
func WithLedger(l store.Store) Option {
	return func(r *Recoverer) { r.ledger = l }
}

// WithAlerter evaluates the finished run against alert thresholds.
func WithAlerter(a *monitoring.Alerter) Option {
	return func(r *Recoverer) { r.alerter = a }
}

// Recoverer runs the browser fallback pass over a sheet.
type Recoverer struct {
	sheet   sheet.Store
	scraper Scraper
	ledger  store.Store
	alerter *monitoring.Alerter
	opts    Options
}

// New creates a Recoverer. A zero Pause uses DefaultPause; a negative one disables it.
func New(st sheet.Store, sc Scraper, opts Options, options ...Option) *Recoverer {
	if opts.Pause == 0 {
		opts.Pause = DefaultPause
	}
	r := &Recoverer{sheet: st, scraper: sc, opts: opts}
	for _, o := range options {
		o(r)
	}
	return r
}

// Targets returns the rows tagged Error that still carry a URL.
func Targets(rows []sheet.Row) []model.URLTask {
	var tasks []model.URLTask
	for _, row := range rows {
		if row.URL == "" || !row.Failed() {
			continue
		}
		tasks = append(tasks, model.URLTask{Row: row.Row, URL: row.URL})
	}
	return tasks
}

// Run scrapes every Error row once. A row is rewritten with the Web.dev tag
// when at least one strategy yields LCP; otherwise it is left as it was.
// Rows of any other tag are never touched, so the pass can be repeated.
func (r *Recoverer) Run(ctx context.Context) (*model.RunSummary, error) {
	start := time.Now()
	log := zap.L().With(zap.String("spreadsheet", r.opts.Spreadsheet))

	rows, err := r.sheet.ReadRows(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "recovery: read rows")
	}

	targets := Targets(rows)
	summary := model.NewRunSummary()
	summary.Total = len(targets)
	log.Info("recovery: found error rows", zap.Int("rows", len(targets)))

	if len(targets) == 0 {
		return summary, nil
	}

	runID := r.createRun(ctx)
	writeCtx := context.WithoutCancel(ctx)

	writer := sheet.NewWriter(r.sheet, sheet.WriterOptions{
		BatchRows: 1,
		Retry:     r.opts.Retry,
		Encode:    sheet.EncodeRecovered,
		OnWrite:   r.recordOutcomes(runID),
	})

	for i, task := range targets {
		if ctx.Err() != nil {
			break
		}

		row := model.AuditRow{Task: task}
		row.Mobile = r.scrape(ctx, task, model.StrategyMobile)
		if err := r.pause(ctx); err != nil {
			break
		}
		row.Desktop = r.scrape(ctx, task, model.StrategyDesktop)

		if row.Mobile.Failed() && row.Desktop.Failed() {
			if ctx.Err() != nil {
				break
			}
			summary.Record(model.SourceError)
			monitoring.ObserveRecovery("failed")
			log.Info("recovery: still no data", zap.Int("row", task.Row), zap.String("url", task.URL))
		} else {
			summary.Record(model.SourceBrowser)
			monitoring.ObserveRecovery("recovered")
			log.Info(fmt.Sprintf("recovered M:%s D:%s", lcpLabel(row.Mobile), lcpLabel(row.Desktop)),
				zap.Int("row", task.Row),
				zap.String("url", task.URL),
			)
			if err := writer.Add(writeCtx, row); err != nil {
				log.Error("recovery: write failed, row kept for the next flush", zap.Error(err))
			}
		}

		if i < len(targets)-1 {
			if err := r.pause(ctx); err != nil {
				break
			}
		}
	}

	closeCtx, cancel := context.WithTimeout(writeCtx, closeTimeout)
	defer cancel()
	writeErr := writer.Close(closeCtx)

	summary.DurationMs = time.Since(start).Milliseconds()
	summary.Skipped = summary.Total - summary.Processed

	status := model.RunStatusComplete
	errMsg := ""
	switch {
	case writeErr != nil:
		status = model.RunStatusFailed
		errMsg = writeErr.Error()
	case ctx.Err() != nil:
		status = model.RunStatusCancelled
		log.Warn("recovery: cancelled", zap.Int("not_scraped", summary.Skipped))
	}
	r.finishRun(writeCtx, runID, status, summary, errMsg)

	p := message.NewPrinter(language.English)
	log.Info(p.Sprintf("recovery complete: %d fixed, %d still broken in %s",
		summary.BySource[model.SourceBrowser], summary.Errors(),
		(time.Duration(summary.DurationMs) * time.Millisecond).Round(time.Second)))

	if writeErr != nil {
		return summary, eris.Wrap(writeErr, "recovery: write results")
	}
	return summary, nil
}

func (r *Recoverer) scrape(ctx context.Context, task model.URLTask, strategy model.Strategy) model.StrategyResult {
	log := zap.L().With(
		zap.Int("row", task.Row),
		zap.String("url", task.URL),
		zap.String("strategy", string(strategy)),
	)

	text, err := r.scraper.Scrape(ctx, task.URL, string(strategy))
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("recovery: scrape failed", zap.Error(err))
		}
		return model.FailedStrategy(strategy, err)
	}

	res, err := ParseReport(strategy, text)
	if err != nil {
		log.Debug("recovery: no usable report", zap.Error(err))
		return model.FailedStrategy(strategy, err)
	}
	return res
}

func (r *Recoverer) pause(ctx context.Context) error {
	if r.opts.Pause <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.opts.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Recoverer) createRun(ctx context.Context) string {
	if r.ledger == nil {
		return ""
	}
	run, err := r.ledger.CreateRun(ctx, model.RunKindRecover, r.opts.Spreadsheet)
	if err != nil {
		zap.L().Warn("recovery: ledger unavailable, run not recorded", zap.Error(err))
		return ""
	}
	return run.ID
}

func (r *Recoverer) recordOutcomes(runID string) func(context.Context, []model.AuditRow) {
	if r.ledger == nil || runID == "" {
		return nil
	}
	return func(ctx context.Context, rows []model.AuditRow) {
		outcomes := make([]model.RowOutcome, len(rows))
		for i, row := range rows {
			outcomes[i] = model.OutcomeFor(runID, row, model.SourceBrowser)
		}
		if err := r.ledger.SaveOutcomes(ctx, outcomes); err != nil {
			zap.L().Warn("recovery: save outcomes", zap.String("run_id", runID), zap.Error(err))
		}
	}
}

func (r *Recoverer) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) {
	if r.ledger != nil && runID != "" {
		if err := r.ledger.UpdateRunResult(ctx, runID, status, summary, errMsg); err != nil {
			zap.L().Warn("recovery: update run", zap.String("run_id", runID), zap.Error(err))
		}
	}
	if r.alerter != nil {
		r.alerter.Notify(ctx, monitoring.RunReport{
			RunID:       runID,
			Kind:        model.RunKindRecover,
			Spreadsheet: r.opts.Spreadsheet,
			Status:      status,
			Summary:     summary,
			Err:         errMsg,
		})
	}
}

func lcpLabel(res model.StrategyResult) string {
	v, ok := res.Value(model.MetricLCP)
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%.2fs", v)
}
