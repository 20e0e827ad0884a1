package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vitals-cli/internal/model"
)

const passedReport = `Discover what your real users are experiencing
Core Web Vitals Assessment:
Passed
Largest Contentful Paint (LCP)
2.1 s
Interaction to Next Paint (INP)
249 ms
Cumulative Layout Shift (CLS)
0.04
First Contentful Paint (FCP)
1.3 s
Time to First Byte (TTFB)
780 ms
`

func TestParseReport_Passed(t *testing.T) {
	res, err := ParseReport(model.StrategyMobile, passedReport)
	require.NoError(t, err)

	assert.Equal(t, model.SourceBrowser, res.Source)
	assert.Equal(t, model.AssessmentFast, res.Assessment)
	assert.Equal(t, model.StrategyMobile, res.Strategy)

	want := map[model.Metric]float64{
		model.MetricLCP:  2.1,
		model.MetricINP:  249,
		model.MetricCLS:  0.04,
		model.MetricFCP:  1.3,
		model.MetricTTFB: 0.78,
	}
	for m, v := range want {
		got, ok := res.Value(m)
		require.True(t, ok, m)
		assert.InDelta(t, v, got, 0.0001, m)
		assert.Equal(t, model.SourceBrowser, res.Samples[m].Source)
	}
	assert.Equal(t, model.TierNeedsImprovement, res.Samples[model.MetricINP].Tier)
	assert.Equal(t, model.TierGood, res.Samples[model.MetricTTFB].Tier)
}

func TestParseReport_FailedAndUnitConversions(t *testing.T) {
	text := "Core Web Vitals Assessment: Failed\n" +
		"Largest Contentful Paint (LCP)\n850 ms\n" +
		"Interaction to Next Paint (INP)\n0.3 s\n" +
		"Time to First Byte (TTFB)\n1.2 s\n"

	res, err := ParseReport(model.StrategyDesktop, text)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentSlow, res.Assessment)

	lcp, _ := res.Value(model.MetricLCP)
	assert.InDelta(t, 0.85, lcp, 0.0001)
	inp, _ := res.Value(model.MetricINP)
	assert.Equal(t, 300.0, inp)
	ttfb, _ := res.Value(model.MetricTTFB)
	assert.InDelta(t, 1.2, ttfb, 0.0001)

	_, ok := res.Value(model.MetricCLS)
	assert.False(t, ok)
	_, ok = res.Value(model.MetricFCP)
	assert.False(t, ok)
}

func TestParseReport_NoAssessment(t *testing.T) {
	res, err := ParseReport(model.StrategyMobile, "Largest Contentful Paint (LCP)\n3 s\n")
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentUnknown, res.Assessment)
	assert.Equal(t, model.TierNeedsImprovement, res.Samples[model.MetricLCP].Tier)
}

func TestParseReport_NoLCP(t *testing.T) {
	tests := []string{
		"",
		"The Chrome User Experience Report does not have sufficient real-world speed data for this page.",
		"Interaction to Next Paint (INP)\n120 ms\nCumulative Layout Shift (CLS)\n0.01",
	}
	for _, text := range tests {
		_, err := ParseReport(model.StrategyMobile, text)
		assert.ErrorIs(t, err, ErrNoLCP)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		metric model.Metric
		raw    string
		want   float64
		ok     bool
	}{
		{model.MetricLCP, "2.1 s", 2.1, true},
		{model.MetricLCP, "2346 ms", 2.35, true},
		{model.MetricFCP, "1.234s", 1.23, true},
		{model.MetricINP, "249 ms", 249, true},
		{model.MetricINP, "0.2495 s", 249, true},
		{model.MetricCLS, "0.26", 0.26, true},
		{model.MetricLCP, ". s", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseValue(tt.metric, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.InDelta(t, tt.want, got, 0.0001, tt.raw)
	}
}
