package sheet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/resilience"
	"github.com/sells-group/vitals-cli/internal/sheet"
	"github.com/sells-group/vitals-cli/internal/sheet/sheettest"
)

func fastRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Retryable:      func(error) bool { return true },
	}
}

func auditRow(row int, src model.Source) model.AuditRow {
	result := func(s model.Strategy, lcp float64) model.StrategyResult {
		samples := make(map[model.Metric]model.MetricSample)
		for m, v := range map[model.Metric]float64{
			model.MetricLCP:  lcp,
			model.MetricCLS:  0.05,
			model.MetricINP:  180,
			model.MetricFCP:  1.2,
			model.MetricTTFB: 0.4,
		} {
			samples[m] = model.MetricSample{Metric: m, Value: v, Source: src}
		}
		return model.StrategyResult{Strategy: s, Samples: samples, Assessment: model.AssessmentFast, Source: src}
	}
	return model.AuditRow{
		Task:    model.URLTask{Row: row, URL: "https://example.com"},
		Mobile:  result(model.StrategyMobile, 2.1),
		Desktop: result(model.StrategyDesktop, 0.9),
	}
}

func rowsOf(batch []sheet.RowValues) []int {
	out := make([]int, len(batch))
	for i, r := range batch {
		out[i] = r.Row
	}
	return out
}

func TestWriter_FlushesAtBatchSize(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()
	w := sheet.NewWriter(store, sheet.WriterOptions{BatchRows: 2, Retry: fastRetry()})

	require.NoError(t, w.Add(ctx, auditRow(3, model.SourceField)))
	assert.Empty(t, store.Writes())

	require.NoError(t, w.Add(ctx, auditRow(2, model.SourceField)))
	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []int{2, 3}, rowsOf(writes[0]))

	require.NoError(t, w.Add(ctx, auditRow(5, model.SourceLab)))
	require.NoError(t, w.Close(ctx))
	writes = store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []int{5}, rowsOf(writes[1]))
	assert.Equal(t, 3, w.Written())
	assert.Equal(t, "Lab", store.Cells(5)[12])
}

func TestWriter_StartRowDropsEarlierRows(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()
	store.SetCells(2, "1.0", "", "", "", "", "FAST", "", "", "", "", "", "", "Field")

	w := sheet.NewWriter(store, sheet.WriterOptions{StartRow: 4, BatchRows: 10, Retry: fastRetry()})
	for _, r := range []int{2, 3, 4, 5} {
		require.NoError(t, w.Add(ctx, auditRow(r, model.SourceLab)))
	}
	require.NoError(t, w.Close(ctx))

	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []int{4, 5}, rowsOf(writes[0]))
	assert.Equal(t, "Field", store.Cells(2)[12])
	assert.Equal(t, "", store.Cells(3)[12])
}

func TestWriter_OrderedHoldsUntilPredecessorArrives(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()
	w := sheet.NewWriter(store, sheet.WriterOptions{BatchRows: 2, Ordered: true, Retry: fastRetry()})
	w.Expect([]int{2, 3, 4, 5})

	require.NoError(t, w.Add(ctx, auditRow(4, model.SourceField)))
	require.NoError(t, w.Add(ctx, auditRow(5, model.SourceField)))
	assert.Empty(t, store.Writes(), "rows 4 and 5 wait for 2 and 3")
	assert.Equal(t, 2, w.NextUnwritten())
	assert.Equal(t, 2, w.Pending())

	require.NoError(t, w.Add(ctx, auditRow(2, model.SourceField)))
	assert.Empty(t, store.Writes())

	require.NoError(t, w.Add(ctx, auditRow(3, model.SourceField)))
	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []int{2, 3, 4, 5}, rowsOf(writes[0]))
	assert.Equal(t, 0, w.NextUnwritten())
}

func TestWriter_CloseWritesHeldRows(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()
	w := sheet.NewWriter(store, sheet.WriterOptions{BatchRows: 10, Ordered: true, Retry: fastRetry()})
	w.Expect([]int{2, 3, 4, 6})

	require.NoError(t, w.Add(ctx, auditRow(2, model.SourceField)))
	require.NoError(t, w.Add(ctx, auditRow(6, model.SourceField)))
	require.NoError(t, w.Add(ctx, auditRow(4, model.SourceField)))
	require.NoError(t, w.Close(ctx))

	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []int{2, 4, 6}, rowsOf(writes[0]))
	assert.Equal(t, 3, w.NextUnwritten(), "row 3 never arrived")
}

func TestWriter_RetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()
	store.FailWrites = 2
	store.WriteErr = errors.New("503 backend error")

	w := sheet.NewWriter(store, sheet.WriterOptions{BatchRows: 1, Retry: fastRetry()})
	require.NoError(t, w.Add(ctx, auditRow(2, model.SourceField)))
	assert.Len(t, store.Writes(), 1)
}

func TestWriter_FailedFlushKeepsRows(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()
	store.FailWrites = 3
	store.WriteErr = errors.New("503 backend error")

	w := sheet.NewWriter(store, sheet.WriterOptions{BatchRows: 1, Retry: fastRetry()})
	err := w.Add(ctx, auditRow(2, model.SourceField))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush 1 rows")
	assert.Equal(t, 1, w.Pending())
	assert.Equal(t, 0, w.Written())

	require.NoError(t, w.Close(ctx))
	assert.Equal(t, 1, w.Written())
	assert.Equal(t, 0, w.Pending())
}

func TestWriter_OnWriteAndEncode(t *testing.T) {
	ctx := context.Background()
	store := sheettest.NewMemoryStore()

	var seen []int
	w := sheet.NewWriter(store, sheet.WriterOptions{
		BatchRows: 5,
		Retry:     fastRetry(),
		Encode:    sheet.EncodeRecovered,
		OnWrite: func(_ context.Context, rows []model.AuditRow) {
			for _, r := range rows {
				seen = append(seen, r.Task.Row)
			}
		},
	})
	require.NoError(t, w.Add(ctx, auditRow(8, model.SourceBrowser)))
	require.NoError(t, w.Add(ctx, auditRow(3, model.SourceBrowser)))
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, []int{3, 8}, seen)
	assert.Equal(t, "Web.dev", store.Cells(8)[12])
}

func TestWriter_FlushEmptyIsNoop(t *testing.T) {
	store := sheettest.NewMemoryStore()
	w := sheet.NewWriter(store, sheet.WriterOptions{})
	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, store.Writes())
}
