package recovery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/vitals"
)

// ErrNoLCP is returned when a report page has no readable LCP value.
var ErrNoLCP = eris.New("recovery: report has no LCP value")

// web.dev separates values from units with either a space or a no-break space.
const gap = `[\s\x{00a0}]*`

var metricPatterns = map[model.Metric]*regexp.Regexp{
	model.MetricLCP:  regexp.MustCompile(`Largest Contentful Paint \(LCP\)\n([\d.]+` + gap + `(?:s|ms))`),
	model.MetricINP:  regexp.MustCompile(`Interaction to Next Paint \(INP\)\n([\d.]+` + gap + `(?:s|ms))`),
	model.MetricCLS:  regexp.MustCompile(`Cumulative Layout Shift \(CLS\)\n([\d.]+)`),
	model.MetricFCP:  regexp.MustCompile(`First Contentful Paint \(FCP\)\n([\d.]+` + gap + `(?:s|ms))`),
	model.MetricTTFB: regexp.MustCompile(`Time to First Byte \(TTFB\)\n([\d.]+` + gap + `(?:s|ms))`),
}

var assessmentPattern = regexp.MustCompile(`Core Web Vitals Assessment:\s*\n?\s*(Passed|Failed)`)

// ParseReport reads the real-user metrics from the visible text of a
// pagespeed.web.dev analysis page. Missing metrics are left out; the result
// is usable only when LCP is present.
func ParseReport(strategy model.Strategy, text string) (model.StrategyResult, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	samples := make(map[model.Metric]model.MetricSample)
	for _, m := range model.AllMetrics() {
		match := metricPatterns[m].FindStringSubmatch(text)
		if match == nil {
			continue
		}
		v, ok := parseValue(m, match[1])
		if !ok {
			continue
		}
		samples[m] = model.MetricSample{
			Metric: m,
			Value:  v,
			Source: model.SourceBrowser,
			Tier:   vitals.Classify(m, v),
		}
	}

	if _, ok := samples[model.MetricLCP]; !ok {
		return model.StrategyResult{}, ErrNoLCP
	}

	assessment := model.AssessmentUnknown
	if match := assessmentPattern.FindStringSubmatch(text); match != nil {
		assessment = model.AssessmentSlow
		if match[1] == "Passed" {
			assessment = model.AssessmentFast
		}
	}

	return model.StrategyResult{
		Strategy:   strategy,
		Samples:    samples,
		Assessment: assessment,
		Source:     model.SourceBrowser,
	}, nil
}

// parseValue converts "2.1 s", "249 ms" or "0.26" into the metric's unit.
func parseValue(m model.Metric, raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))

	ms := strings.HasSuffix(raw, "ms")
	num := strings.TrimSpace(strings.TrimRight(raw, "ms"))
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}

	switch m {
	case model.MetricCLS:
		return v, true
	case model.MetricINP:
		if !ms {
			v *= 1000
		}
		return float64(int(v)), true
	default:
		if ms {
			v /= 1000
		}
		return vitals.Round(v, 2), true
	}
}
