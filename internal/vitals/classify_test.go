package vitals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/vitals-cli/internal/model"
)

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		metric model.Metric
		value  float64
		want   model.Tier
	}{
		{model.MetricLCP, 2.1, model.TierGood},
		{model.MetricLCP, 2.5, model.TierGood},
		{model.MetricLCP, 2.51, model.TierNeedsImprovement},
		{model.MetricLCP, 4.0, model.TierNeedsImprovement},
		{model.MetricLCP, 4.01, model.TierPoor},
		{model.MetricCLS, 0, model.TierGood},
		{model.MetricCLS, 0.1, model.TierGood},
		{model.MetricCLS, 0.25, model.TierNeedsImprovement},
		{model.MetricCLS, 0.26, model.TierPoor},
		{model.MetricINP, 200, model.TierGood},
		{model.MetricINP, 500, model.TierNeedsImprovement},
		{model.MetricINP, 501, model.TierPoor},
		{model.MetricFCP, 1.8, model.TierGood},
		{model.MetricFCP, 3.0, model.TierNeedsImprovement},
		{model.MetricFCP, 3.1, model.TierPoor},
		{model.MetricTTFB, 0.8, model.TierGood},
		{model.MetricTTFB, 1.8, model.TierNeedsImprovement},
		{model.MetricTTFB, 1.81, model.TierPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.metric, tt.value), "%s=%v", tt.metric, tt.value)
	}
}

func TestAssessWorstOf(t *testing.T) {
	t.Parallel()

	sample := func(m model.Metric, tier model.Tier) model.MetricSample {
		return model.MetricSample{Metric: m, Tier: tier}
	}

	t.Run("all good", func(t *testing.T) {
		got := Assess(map[model.Metric]model.MetricSample{
			model.MetricLCP: sample(model.MetricLCP, model.TierGood),
			model.MetricCLS: sample(model.MetricCLS, model.TierGood),
		})
		assert.Equal(t, model.AssessmentFast, got)
	})

	t.Run("one needs improvement", func(t *testing.T) {
		got := Assess(map[model.Metric]model.MetricSample{
			model.MetricLCP:  sample(model.MetricLCP, model.TierGood),
			model.MetricTTFB: sample(model.MetricTTFB, model.TierNeedsImprovement),
		})
		assert.Equal(t, model.AssessmentAverage, got)
	})

	t.Run("poor wins", func(t *testing.T) {
		got := Assess(map[model.Metric]model.MetricSample{
			model.MetricLCP: sample(model.MetricLCP, model.TierPoor),
			model.MetricFCP: sample(model.MetricFCP, model.TierNeedsImprovement),
		})
		assert.Equal(t, model.AssessmentSlow, got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, model.AssessmentUnknown, Assess(nil))
	})
}

func TestRound(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.35, Round(2.3456, 2), 1e-9)
	assert.InDelta(t, 0.012, Round(0.0123, 3), 1e-9)
	assert.InDelta(t, 5.1, Round(5.1, 2), 1e-9)
}
