package model

import "strings"

// Strategy is the device profile a page is audited under.
type Strategy string

const (
	StrategyMobile  Strategy = "mobile"
	StrategyDesktop Strategy = "desktop"
)

// Strategies returns the audited strategies in column order.
func Strategies() []Strategy {
	return []Strategy{StrategyMobile, StrategyDesktop}
}

// Metric identifies one of the five tracked web vitals.
type Metric string

const (
	MetricLCP  Metric = "lcp"
	MetricCLS  Metric = "cls"
	MetricINP  Metric = "inp"
	MetricFCP  Metric = "fcp"
	MetricTTFB Metric = "ttfb"
)

// AllMetrics returns the tracked metrics in spreadsheet column order.
func AllMetrics() []Metric {
	return []Metric{MetricLCP, MetricCLS, MetricINP, MetricFCP, MetricTTFB}
}

// Unit returns the display unit of the metric's normalized value.
func (m Metric) Unit() string {
	switch m {
	case MetricLCP, MetricFCP, MetricTTFB:
		return "s"
	case MetricINP:
		return "ms"
	default:
		return ""
	}
}

// Source records which data tier produced a value.
type Source string

const (
	SourceField   Source = "field"
	SourceLab     Source = "lab"
	SourceBrowser Source = "browser"
	SourceError   Source = "error"
)

// Tag returns the label written to the spreadsheet's source column.
func (s Source) Tag() string {
	switch s {
	case SourceField:
		return "Field"
	case SourceLab:
		return "Lab"
	case SourceBrowser:
		return "Web.dev"
	default:
		return "Error"
	}
}

// SourceFromTag parses a source column label. Unknown labels report false.
func SourceFromTag(tag string) (Source, bool) {
	switch strings.TrimSpace(tag) {
	case "Field":
		return SourceField, true
	case "Lab":
		return SourceLab, true
	case "Web.dev":
		return SourceBrowser, true
	case "Error":
		return SourceError, true
	default:
		return "", false
	}
}

// Assessment is the overall Core Web Vitals verdict for a strategy.
type Assessment string

const (
	AssessmentFast    Assessment = "FAST"
	AssessmentAverage Assessment = "AVERAGE"
	AssessmentSlow    Assessment = "SLOW"
	AssessmentUnknown Assessment = "UNKNOWN"
)

// ParseAssessment maps a category label to an Assessment.
func ParseAssessment(label string) (Assessment, bool) {
	switch Assessment(strings.ToUpper(strings.TrimSpace(label))) {
	case AssessmentFast:
		return AssessmentFast, true
	case AssessmentAverage:
		return AssessmentAverage, true
	case AssessmentSlow:
		return AssessmentSlow, true
	default:
		return AssessmentUnknown, false
	}
}

// Tier is the per-metric threshold classification.
type Tier string

const (
	TierGood             Tier = "GOOD"
	TierNeedsImprovement Tier = "NEEDS_IMPROVEMENT"
	TierPoor             Tier = "POOR"
)

// URLTask is one URL to audit. Row is the 1-based spreadsheet row and the
// only key used to address results.
type URLTask struct {
	Row int    `json:"row"`
	URL string `json:"url"`
}

// MetricSample is one normalized metric value with its provenance.
type MetricSample struct {
	Metric Metric  `json:"metric"`
	Value  float64 `json:"value"`
	Source Source  `json:"source"`
	Tier   Tier    `json:"tier"`
}

// StrategyResult is the outcome of auditing one URL under one strategy.
type StrategyResult struct {
	Strategy   Strategy                `json:"strategy"`
	Samples    map[Metric]MetricSample `json:"samples,omitempty"`
	Assessment Assessment              `json:"assessment"`
	Source     Source                  `json:"source"`
	Err        string                  `json:"error,omitempty"`
}

// FailedStrategy returns the result recorded when a strategy could not be audited.
func FailedStrategy(strategy Strategy, err error) StrategyResult {
	r := StrategyResult{
		Strategy:   strategy,
		Assessment: AssessmentUnknown,
		Source:     SourceError,
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Failed reports whether the strategy produced no usable data.
func (r StrategyResult) Failed() bool {
	return r.Source == SourceError || r.Source == ""
}

// Value returns the normalized value for a metric, if one was resolved.
func (r StrategyResult) Value(m Metric) (float64, bool) {
	s, ok := r.Samples[m]
	if !ok {
		return 0, false
	}
	return s.Value, true
}

// AuditRow pairs the mobile and desktop results for one task.
type AuditRow struct {
	Task    URLTask        `json:"task"`
	Mobile  StrategyResult `json:"mobile"`
	Desktop StrategyResult `json:"desktop"`

	// Cancelled marks a row that failed only because the run was interrupted.
	Cancelled bool `json:"-"`
}

// Result returns the strategy result for s.
func (r AuditRow) Result(s Strategy) StrategyResult {
	if s == StrategyDesktop {
		return r.Desktop
	}
	return r.Mobile
}

// Source coarsens the two strategy sources into the row tag. A row is an
// error when either strategy failed.
func (r AuditRow) Source() Source {
	switch {
	case r.Mobile.Failed() || r.Desktop.Failed():
		return SourceError
	case r.Mobile.Source == SourceBrowser || r.Desktop.Source == SourceBrowser:
		return SourceBrowser
	case r.Mobile.Source == SourceField || r.Desktop.Source == SourceField:
		return SourceField
	default:
		return SourceLab
	}
}

// Err returns the first strategy error message, if any.
func (r AuditRow) Err() string {
	if r.Mobile.Err != "" {
		return "mobile: " + r.Mobile.Err
	}
	if r.Desktop.Err != "" {
		return "desktop: " + r.Desktop.Err
	}
	return ""
}
