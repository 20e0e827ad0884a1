package pagespeed

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	psi "google.golang.org/api/pagespeedonline/v5"
)

const defaultBaseURL = "https://pagespeedonline.googleapis.com/"

// CrUX metric ids in loadingExperience.metrics.
const (
	FieldLCP  = "LARGEST_CONTENTFUL_PAINT_MS"
	FieldCLS  = "CUMULATIVE_LAYOUT_SHIFT_SCORE"
	FieldINP  = "INTERACTION_TO_NEXT_PAINT"
	FieldFCP  = "FIRST_CONTENTFUL_PAINT_MS"
	FieldTTFB = "EXPERIMENTAL_TIME_TO_FIRST_BYTE"
)

// Lighthouse audit ids in lighthouseResult.audits.
const (
	AuditLCP  = "largest-contentful-paint"
	AuditCLS  = "cumulative-layout-shift"
	AuditFCP  = "first-contentful-paint"
	AuditTTFB = "server-response-time"
)

// ErrEmptyResponse is returned when a response carries neither field nor lab data.
var ErrEmptyResponse = eris.New("pagespeed: response has no field or lab data")

// Client runs PageSpeed Insights audits.
type Client interface {
	Run(ctx context.Context, url, strategy string) (*Result, error)
}

// Result is the subset of a runPagespeed response the audit uses.
type Result struct {
	URL   string
	Field *FieldData
	Lab   *LabData
}

// FieldData is the CrUX real-user block. Percentiles are raw API values:
// milliseconds for timings and CLS multiplied by 100.
type FieldData struct {
	OverallCategory string
	Percentiles     map[string]int64
}

// LabData holds Lighthouse audit numeric values keyed by audit id.
type LabData struct {
	Audits map[string]float64
}

// Option configures the client.
type Option func(*apiClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *apiClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *apiClient) {
		c.http = hc
	}
}

type apiClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	svc     *psi.Service
}

// NewClient creates a PageSpeed Insights v5 client authenticated by API key.
func NewClient(apiKey string, opts ...Option) (Client, error) {
	c := &apiClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}

	svc, err := psi.NewService(context.Background(),
		option.WithHTTPClient(c.http),
		option.WithEndpoint(c.baseURL),
	)
	if err != nil {
		return nil, eris.Wrap(err, "pagespeed: create service")
	}
	c.svc = svc
	return c, nil
}

// Run audits url under strategy ("mobile" or "desktop") for the performance category.
func (c *apiClient) Run(ctx context.Context, url, strategy string) (*Result, error) {
	resp, err := c.svc.Pagespeedapi.Runpagespeed(url).
		Strategy(strings.ToUpper(strategy)).
		Category("PERFORMANCE").
		Context(ctx).
		Do(googleapi.QueryParameter("key", c.apiKey))
	if err != nil {
		return nil, eris.Wrapf(err, "pagespeed: run %s %s", strategy, url)
	}

	res := &Result{URL: url}

	if le := resp.LoadingExperience; le != nil && len(le.Metrics) > 0 {
		fd := &FieldData{
			OverallCategory: le.OverallCategory,
			Percentiles:     make(map[string]int64, len(le.Metrics)),
		}
		for id, m := range le.Metrics {
			fd.Percentiles[id] = m.Percentile
		}
		res.Field = fd
	}

	if lr := resp.LighthouseResult; lr != nil && len(lr.Audits) > 0 {
		ld := &LabData{Audits: make(map[string]float64, len(lr.Audits))}
		for id, a := range lr.Audits {
			if a.ScoreDisplayMode == "error" {
				continue
			}
			ld.Audits[id] = a.NumericValue
		}
		if len(ld.Audits) > 0 {
			res.Lab = ld
		}
	}

	if res.Field == nil && res.Lab == nil {
		return nil, eris.Wrapf(ErrEmptyResponse, "pagespeed: run %s %s", strategy, url)
	}
	return res, nil
}
