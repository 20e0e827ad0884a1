package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/internal/vitals"
	"github.com/sells-group/vitals-cli/pkg/pagespeed"
)

// Fetcher audits one URL under one strategy.
type Fetcher interface {
	Fetch(ctx context.Context, url string, strategy model.Strategy) (model.StrategyResult, error)
}

// Options configures a PageSpeed fetcher.
type Options struct {
	// Timeout bounds each API call. Default: 90s.
	Timeout time.Duration
	// Breaker, when set, fails calls fast after repeated transport failures.
	Breaker *resilience.Breaker
}

// PageSpeed fetches audits from the PageSpeed Insights API under a shared
// Budget. It never retries; a failed call is reported to the caller.
type PageSpeed struct {
	client  pagespeed.Client
	budget  *Budget
	timeout time.Duration
	breaker *resilience.Breaker
}

// NewPageSpeed creates a fetcher. All fetchers sharing budget share its limits.
func NewPageSpeed(client pagespeed.Client, budget *Budget, opts Options) *PageSpeed {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &PageSpeed{
		client:  client,
		budget:  budget,
		timeout: opts.Timeout,
		breaker: opts.Breaker,
	}
}

// ShouldTrip reports whether a client error reflects the API's health rather
// than the audited page. Timeouts and malformed responses are page-specific.
func ShouldTrip(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	kind, _ := classify(err)
	return kind == KindTransport
}

// Fetch audits url under strategy. Failures are *FetchError or
// *vitals.ExtractionError.
func (p *PageSpeed) Fetch(ctx context.Context, url string, strategy model.Strategy) (model.StrategyResult, error) {
	url = NormalizeURL(url)
	start := time.Now()

	if err := p.budget.Acquire(ctx); err != nil {
		return model.StrategyResult{}, p.fail(url, strategy, start, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	run := func(ctx context.Context) (*pagespeed.Result, error) {
		return p.client.Run(ctx, url, string(strategy))
	}

	var (
		res *pagespeed.Result
		err error
	)
	if p.breaker != nil {
		res, err = resilience.Call(callCtx, p.breaker, run)
	} else {
		res, err = run(callCtx)
	}
	if err != nil {
		return model.StrategyResult{}, p.fail(url, strategy, start, err)
	}

	p.budget.OnSuccess()

	out, err := vitals.Extract(strategy, vitals.FromPageSpeed(res))
	if err != nil {
		monitoring.ObserveFetch(string(strategy), "extraction", time.Since(start))
		return model.StrategyResult{}, err
	}
	monitoring.ObserveFetch(string(strategy), string(out.Source), time.Since(start))
	return out, nil
}

func (p *PageSpeed) fail(url string, strategy model.Strategy, start time.Time, err error) error {
	kind, status := classify(err)
	if status == http.StatusTooManyRequests {
		p.budget.OnRateLimit()
	}
	monitoring.ObserveFetch(string(strategy), string(kind), time.Since(start))

	zap.L().Debug("pagespeed fetch failed",
		zap.String("url", url),
		zap.String("strategy", string(strategy)),
		zap.String("kind", string(kind)),
		zap.Int("status", status),
		zap.Error(err),
	)
	return &FetchError{Kind: kind, URL: url, Strategy: strategy, StatusCode: status, Err: err}
}

// NormalizeURL trims whitespace and adds an https scheme when none is given.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return u
	}
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "https://" + u
	}
	return u
}
