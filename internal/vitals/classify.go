package vitals

import "github.com/sells-group/vitals-cli/internal/model"

// Threshold holds the tier boundaries for one metric. Values at or below
// Good are GOOD; values strictly above Poor are POOR.
type Threshold struct {
	Good float64
	Poor float64
}

// Thresholds are the Core Web Vitals boundaries in normalized units
// (seconds for LCP, FCP and TTFB; milliseconds for INP; unitless CLS).
var Thresholds = map[model.Metric]Threshold{
	model.MetricLCP:  {Good: 2.5, Poor: 4.0},
	model.MetricCLS:  {Good: 0.1, Poor: 0.25},
	model.MetricINP:  {Good: 200, Poor: 500},
	model.MetricFCP:  {Good: 1.8, Poor: 3.0},
	model.MetricTTFB: {Good: 0.8, Poor: 1.8},
}

// Classify maps a normalized metric value to its tier.
func Classify(m model.Metric, value float64) model.Tier {
	th, ok := Thresholds[m]
	if !ok {
		return model.TierNeedsImprovement
	}
	switch {
	case value <= th.Good:
		return model.TierGood
	case value > th.Poor:
		return model.TierPoor
	default:
		return model.TierNeedsImprovement
	}
}

// Assess derives the overall assessment from per-metric tiers. Any POOR
// metric makes the page SLOW; otherwise any NEEDS_IMPROVEMENT makes it
// AVERAGE.
func Assess(samples map[model.Metric]model.MetricSample) model.Assessment {
	if len(samples) == 0 {
		return model.AssessmentUnknown
	}
	worst := model.TierGood
	for _, s := range samples {
		switch s.Tier {
		case model.TierPoor:
			return model.AssessmentSlow
		case model.TierNeedsImprovement:
			worst = model.TierNeedsImprovement
		}
	}
	if worst == model.TierNeedsImprovement {
		return model.AssessmentAverage
	}
	return model.AssessmentFast
}
