//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	summary := model.NewRunSummary()
	summary.Total = 120
	for range 100 {
		summary.Record(model.SourceField)
	}
	for range 3 {
		summary.Record(model.SourceError)
	}

	runs := []model.Run{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Kind:        model.RunKindAudit,
			Spreadsheet: "1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms",
			Status:      model.RunStatusComplete,
			Summary:     summary,
			CreatedAt:   now,
			UpdatedAt:   now.Add(12 * time.Minute),
		},
		{
			ID:          "def12345-6789-0000-0000-000000000000",
			Kind:        model.RunKindRecover,
			Spreadsheet: "sites.xlsx",
			Status:      model.RunStatusRunning,
			CreatedAt:   now.Add(-1 * time.Hour),
			UpdatedAt:   now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "KIND")
	assert.Contains(t, output, "SPREADSHEET")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "audit")
	assert.Contains(t, output, "1BxiMVs0XRA5nFMdKvBdBZjgmUU...")
	assert.Contains(t, output, "103/120")
	assert.Contains(t, output, "recover")
	assert.Contains(t, output, "sites.xlsx")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		RunsTotal:     4,
		RunsComplete:  2,
		RunsFailed:    1,
		RunsCancelled: 1,
		AuditRuns:     3,
		RecoverRuns:   1,
		RowsProcessed: 12500,
		RowsBySource: map[model.Source]int{
			model.SourceField: 11000,
			model.SourceLab:   1000,
			model.SourceError: 500,
		},
		RowErrorRate:  0.04,
		AvgDurationMs: 150000,
		LookbackHours: 24,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "Window:")
	assert.Contains(t, output, "24h")
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "12,500")
	assert.Contains(t, output, "11,000")
	assert.Contains(t, output, "Web.dev:")
	assert.Contains(t, output, "4.0%")
	assert.Contains(t, output, "150.0s")
}

func TestWriteDetail(t *testing.T) {
	detail := runDetail{
		Run: &model.Run{ID: "run-1", Kind: model.RunKindAudit, Status: model.RunStatusComplete},
		Outcomes: []model.RowOutcome{
			{RunID: "run-1", Row: 7, URL: "https://a.example", Source: model.SourceError, Error: "mobile: timeout"},
		},
	}

	var js bytes.Buffer
	require.NoError(t, writeDetail(&js, detail, "json"))
	assert.Contains(t, js.String(), `"run_id": "run-1"`)
	assert.Contains(t, js.String(), `"row": 7`)

	var ym bytes.Buffer
	require.NoError(t, writeDetail(&ym, detail, "yaml"))
	assert.Contains(t, ym.String(), "kind: audit")
	assert.Contains(t, ym.String(), "mobile: timeout")

	assert.Error(t, writeDetail(&bytes.Buffer{}, detail, "xml"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
