// Package audit drives bulk Core Web Vitals audits over a spreadsheet of URLs.
package audit

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vitals-cli/internal/fetcher"
	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
)

// DefaultConcurrency is the default number of URLs audited at once.
const DefaultConcurrency = 4

// PoolOptions configures a Pool.
type PoolOptions struct {
	Concurrency int
	// ParallelStrategies fetches mobile and desktop at the same time.
	ParallelStrategies bool
}

// Pool audits tasks with bounded concurrency. Each task yields exactly one row.
type Pool struct {
	fetcher fetcher.Fetcher
	opts    PoolOptions
}

// NewPool creates a pool over f.
func NewPool(f fetcher.Fetcher, opts PoolOptions) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Pool{fetcher: f, opts: opts}
}

// Run audits tasks and streams rows in completion order. The channel is
// closed once every task has produced its row. Tasks not started before ctx
// is done are emitted as cancelled error rows.
func (p *Pool) Run(ctx context.Context, tasks []model.URLTask) <-chan model.AuditRow {
	out := make(chan model.AuditRow, p.opts.Concurrency)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(p.opts.Concurrency)

		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				out <- cancelledRow(task, err)
				continue
			}
			g.Go(func() error {
				out <- p.audit(ctx, task)
				return nil // one failed row never stops the others
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (p *Pool) audit(ctx context.Context, task model.URLTask) (row model.AuditRow) {
	if err := ctx.Err(); err != nil {
		return cancelledRow(task, err)
	}

	monitoring.IncInflight()
	defer monitoring.DecInflight()

	row.Task = task
	if p.opts.ParallelStrategies {
		var g errgroup.Group
		g.Go(func() error {
			row.Mobile = p.fetch(ctx, task, model.StrategyMobile)
			return nil
		})
		g.Go(func() error {
			row.Desktop = p.fetch(ctx, task, model.StrategyDesktop)
			return nil
		})
		_ = g.Wait()
	} else {
		row.Mobile = p.fetch(ctx, task, model.StrategyMobile)
		row.Desktop = p.fetch(ctx, task, model.StrategyDesktop)
	}

	if ctx.Err() != nil && row.Source() == model.SourceError {
		row.Cancelled = true
	}
	return row
}

func (p *Pool) fetch(ctx context.Context, task model.URLTask, strategy model.Strategy) (res model.StrategyResult) {
	log := zap.L().With(
		zap.Int("row", task.Row),
		zap.String("url", task.URL),
		zap.String("strategy", string(strategy)),
	)

	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("audit: panic: %v", r)
			log.Error("audit: recovered panic", zap.Error(err))
			res = model.FailedStrategy(strategy, err)
		}
	}()

	res, err := p.fetcher.Fetch(ctx, task.URL, strategy)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("audit: fetch failed", zap.Error(err))
		}
		return model.FailedStrategy(strategy, err)
	}
	return res
}

func cancelledRow(task model.URLTask, err error) model.AuditRow {
	return model.AuditRow{
		Task:      task,
		Mobile:    model.FailedStrategy(model.StrategyMobile, err),
		Desktop:   model.FailedStrategy(model.StrategyDesktop, err),
		Cancelled: true,
	}
}
