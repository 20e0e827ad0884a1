package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/store"
)

// MetricsSnapshot holds ledger totals over a lookback window.
type MetricsSnapshot struct {
	RunsTotal     int `json:"runs_total" yaml:"runs_total"`
	RunsComplete  int `json:"runs_complete" yaml:"runs_complete"`
	RunsFailed    int `json:"runs_failed" yaml:"runs_failed"`
	RunsCancelled int `json:"runs_cancelled" yaml:"runs_cancelled"`
	RunsRunning   int `json:"runs_running" yaml:"runs_running"`

	AuditRuns   int `json:"audit_runs" yaml:"audit_runs"`
	RecoverRuns int `json:"recover_runs" yaml:"recover_runs"`

	RowsProcessed int                  `json:"rows_processed" yaml:"rows_processed"`
	RowsBySource  map[model.Source]int `json:"rows_by_source" yaml:"rows_by_source"`
	RowErrorRate  float64              `json:"row_error_rate" yaml:"row_error_rate"`
	AvgDurationMs int64                `json:"avg_duration_ms" yaml:"avg_duration_ms"`

	LookbackHours int       `json:"lookback_hours" yaml:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at" yaml:"collected_at"`
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		RowsBySource:  make(map[model.Source]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDuration int64
	var timed int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusCancelled:
			snap.RunsCancelled++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		if r.Kind == model.RunKindRecover {
			snap.RecoverRuns++
		} else {
			snap.AuditRuns++
		}

		if r.Summary == nil {
			continue
		}
		// Recovery rows were already counted by the audit that wrote them.
		if r.Kind == model.RunKindAudit {
			snap.RowsProcessed += r.Summary.Processed
			for src, n := range r.Summary.BySource {
				snap.RowsBySource[src] += n
			}
		}
		if r.Summary.DurationMs > 0 {
			totalDuration += r.Summary.DurationMs
			timed++
		}
	}

	if snap.RowsProcessed > 0 {
		snap.RowErrorRate = float64(snap.RowsBySource[model.SourceError]) / float64(snap.RowsProcessed)
	}
	if timed > 0 {
		snap.AvgDurationMs = totalDuration / int64(timed)
	}
	return snap, nil
}
