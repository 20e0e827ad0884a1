package vitals

import (
	"fmt"
	"math"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/pkg/pagespeed"
)

// FieldBlock is real-user (CrUX) data. Values are raw API units:
// milliseconds for timings, CLS multiplied by 100.
type FieldBlock struct {
	Category    string
	Percentiles map[model.Metric]float64
}

// LabBlock is synthetic Lighthouse data. Timings are milliseconds, CLS is unitless.
type LabBlock struct {
	Values map[model.Metric]float64
}

// Response is the tagged union an audit response reduces to. Either block
// may be absent.
type Response struct {
	Field *FieldBlock
	Lab   *LabBlock
}

// ExtractionError reports a response from which no metric could be resolved.
type ExtractionError struct {
	Strategy model.Strategy
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("vitals: no metrics resolved for %s", e.Strategy)
}

var fieldKeys = map[model.Metric]string{
	model.MetricLCP:  pagespeed.FieldLCP,
	model.MetricCLS:  pagespeed.FieldCLS,
	model.MetricINP:  pagespeed.FieldINP,
	model.MetricFCP:  pagespeed.FieldFCP,
	model.MetricTTFB: pagespeed.FieldTTFB,
}

// Lighthouse has no INP; a synthetic load has no user interaction.
var labKeys = map[model.Metric]string{
	model.MetricLCP:  pagespeed.AuditLCP,
	model.MetricCLS:  pagespeed.AuditCLS,
	model.MetricFCP:  pagespeed.AuditFCP,
	model.MetricTTFB: pagespeed.AuditTTFB,
}

// FromPageSpeed reduces an API result to a Response.
func FromPageSpeed(r *pagespeed.Result) Response {
	var resp Response
	if r == nil {
		return resp
	}
	if r.Field != nil {
		fb := &FieldBlock{
			Category:    r.Field.OverallCategory,
			Percentiles: make(map[model.Metric]float64),
		}
		for m, key := range fieldKeys {
			if v, ok := r.Field.Percentiles[key]; ok {
				fb.Percentiles[m] = float64(v)
			}
		}
		resp.Field = fb
	}
	if r.Lab != nil {
		lb := &LabBlock{Values: make(map[model.Metric]float64)}
		for m, key := range labKeys {
			if v, ok := r.Lab.Audits[key]; ok {
				lb.Values[m] = v
			}
		}
		resp.Lab = lb
	}
	return resp
}

// Extract resolves each metric from field data first and lab data second,
// normalizes units, and derives the strategy's assessment.
func Extract(strategy model.Strategy, resp Response) (model.StrategyResult, error) {
	samples := make(map[model.Metric]model.MetricSample)
	usedField := false

	for _, m := range model.AllMetrics() {
		if resp.Field != nil {
			if raw, ok := resp.Field.Percentiles[m]; ok {
				v := fieldUnits(m, raw)
				samples[m] = model.MetricSample{Metric: m, Value: roundField(m, v), Source: model.SourceField, Tier: Classify(m, v)}
				usedField = true
				continue
			}
		}
		if resp.Lab != nil {
			if raw, ok := resp.Lab.Values[m]; ok {
				v := labUnits(m, raw)
				samples[m] = model.MetricSample{Metric: m, Value: roundLab(m, v), Source: model.SourceLab, Tier: Classify(m, v)}
			}
		}
	}

	if len(samples) == 0 {
		return model.StrategyResult{}, &ExtractionError{Strategy: strategy}
	}

	res := model.StrategyResult{
		Strategy: strategy,
		Samples:  samples,
		Source:   model.SourceLab,
	}
	if usedField {
		res.Source = model.SourceField
	}

	res.Assessment = model.AssessmentUnknown
	if resp.Field != nil {
		if a, ok := model.ParseAssessment(resp.Field.Category); ok {
			res.Assessment = a
		}
	}
	if res.Assessment == model.AssessmentUnknown {
		res.Assessment = Assess(samples)
	}
	return res, nil
}

// fieldUnits converts a raw field percentile to display units. Tiers are
// classified on this value; only the stored value is rounded.
func fieldUnits(m model.Metric, raw float64) float64 {
	switch m {
	case model.MetricCLS:
		return raw / 100
	case model.MetricINP:
		return raw
	default:
		return raw / 1000
	}
}

func labUnits(m model.Metric, raw float64) float64 {
	switch m {
	case model.MetricCLS, model.MetricINP:
		return raw
	default:
		return raw / 1000
	}
}

func roundField(m model.Metric, v float64) float64 {
	if m == model.MetricINP {
		return math.Round(v)
	}
	return Round(v, 2)
}

func roundLab(m model.Metric, v float64) float64 {
	switch m {
	case model.MetricCLS:
		return Round(v, 3)
	case model.MetricINP:
		return math.Round(v)
	default:
		return Round(v, 2)
	}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
