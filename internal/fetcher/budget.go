package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrQuotaExhausted is returned once the daily request quota is spent.
var ErrQuotaExhausted = eris.New("fetcher: daily request quota exhausted")

// BudgetOptions sizes the shared request budget.
type BudgetOptions struct {
	// WindowLimit requests may start in any Window.
	WindowLimit int
	Window      time.Duration
	// Burst is the number of requests allowed back-to-back. It counts
	// against WindowLimit.
	Burst int
	// DailyLimit caps requests per UTC day across all processes sharing Quota.
	DailyLimit int64
	Quota      QuotaCounter
}

// Budget is the request budget shared by every worker: a token bucket
// bounding any window plus a daily quota counter.
//
// With burst b and refill rate (limit-b)/window, at most b + (limit-b) =
// limit requests can start in any window.
type Budget struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit

	daily int64
	quota QuotaCounter
	now   func() time.Time
}

// NewBudget creates a Budget. Zero options fall back to 400 requests per
// 100s, burst 4, 25,000 per day, counted in memory.
func NewBudget(opts BudgetOptions) *Budget {
	if opts.WindowLimit <= 0 {
		opts.WindowLimit = 400
	}
	if opts.Window <= 0 {
		opts.Window = 100 * time.Second
	}
	if opts.Burst <= 0 || opts.Burst >= opts.WindowLimit {
		opts.Burst = 1
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 25000
	}
	if opts.Quota == nil {
		opts.Quota = NewMemoryQuota()
	}

	r := rate.Limit(float64(opts.WindowLimit-opts.Burst) / opts.Window.Seconds())
	return &Budget{
		limiter:     rate.NewLimiter(r, opts.Burst),
		initialRate: r,
		minRate:     r / 4,
		currentRate: r,
		daily:       opts.DailyLimit,
		quota:       opts.Quota,
		now:         time.Now,
	}
}

// Acquire blocks until a request may start, then charges it against the
// daily quota. It fails fast with ErrQuotaExhausted once the quota is spent.
func (b *Budget) Acquire(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "fetcher: wait for budget")
	}
	n, err := b.quota.Incr(ctx, dayKey(b.now()))
	if err != nil {
		return eris.Wrap(err, "fetcher: charge daily quota")
	}
	if n > b.daily {
		return ErrQuotaExhausted
	}
	return nil
}

// Used returns the number of requests charged today.
func (b *Budget) Used(ctx context.Context) (int64, error) {
	return b.quota.Get(ctx, dayKey(b.now()))
}

// DailyLimit returns the configured daily quota.
func (b *Budget) DailyLimit() int64 {
	return b.daily
}

// OnSuccess raises the refill rate by 20%, never above the configured rate.
func (b *Budget) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.currentRate >= b.initialRate {
		return
	}
	b.currentRate = min(b.currentRate*1.2, b.initialRate)
	b.limiter.SetLimit(b.currentRate)
}

// OnRateLimit halves the refill rate after a 429, down to a quarter of the
// configured rate.
func (b *Budget) OnRateLimit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentRate = max(b.currentRate*0.5, b.minRate)
	b.limiter.SetLimit(b.currentRate)
	zap.L().Warn("pagespeed budget: reducing rate after 429",
		zap.Float64("requests_per_sec", float64(b.currentRate)),
	)
}

// Limit returns the current refill rate.
func (b *Budget) Limit() rate.Limit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentRate
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
