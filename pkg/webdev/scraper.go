// Package webdev reads pagespeed.web.dev analysis reports with headless Chrome.
package webdev

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

const (
	// DefaultBaseURL is the public PageSpeed report site.
	DefaultBaseURL = "https://pagespeed.web.dev"
	// DefaultSettle is how long the report needs to finish its analysis.
	DefaultSettle = 65 * time.Second
	// DefaultMaxChars caps the page text returned; the metrics sit near the top.
	DefaultMaxChars = 3000

	defaultNavTimeout = 30 * time.Second
)

// Config controls the browser used for scraping.
type Config struct {
	BaseURL           string
	ExecPath          string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	Settle            time.Duration
	MaxChars          int
}

// Scraper loads report pages in a shared Chrome allocator.
type Scraper struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts a Chrome allocator. Call Close to release it.
func New(cfg Config) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Scraper{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close shuts the browser down.
func (s *Scraper) Close() {
	s.allocCancel()
}

// Scrape opens the report for target under formFactor ("mobile" or
// "desktop"), waits for the analysis to settle, and returns the page's
// visible text.
func (s *Scraper) Scrape(ctx context.Context, target, formFactor string) (string, error) {
	reportURL, err := AnalysisURL(s.cfg.BaseURL, target, formFactor)
	if err != nil {
		return "", err
	}

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	// The allocator outlives ctx, so tie the tab to it explicitly.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout+s.cfg.Settle+15*time.Second)
	defer cancel()

	var text string
	actions := []chromedp.Action{
		s.setupAction(),
		chromedp.Navigate(reportURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Settle),
		chromedp.Evaluate(fmt.Sprintf("document.body.innerText.substring(0, %d)", s.cfg.MaxChars), &text),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", eris.Wrapf(err, "webdev: scrape %s (%s)", target, formFactor)
	}
	return text, nil
}

func (s *Scraper) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return eris.Wrap(err, "webdev: set user-agent")
		}
		return nil
	})
}

// AnalysisURL builds the report address for target. Scheme-less targets
// are treated as https.
func AnalysisURL(base, target, formFactor string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", eris.New("webdev: empty url")
	}
	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		target = "https://" + target
	}

	switch formFactor {
	case "mobile", "desktop":
	default:
		return "", eris.Errorf("webdev: unknown form factor %q", formFactor)
	}

	if base == "" {
		base = DefaultBaseURL
	}
	q := url.Values{}
	q.Set("url", target)
	q.Set("form_factor", formFactor)
	return strings.TrimRight(base, "/") + "/analysis?" + q.Encode(), nil
}
