package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vitals-cli/internal/config"
	"github.com/sells-group/vitals-cli/internal/model"
)

func summaryWith(field, lab, errs int) *model.RunSummary {
	s := model.NewRunSummary()
	for range field {
		s.Record(model.SourceField)
	}
	for range lab {
		s.Record(model.SourceLab)
	}
	for range errs {
		s.Record(model.SourceError)
	}
	s.Total = s.Processed
	return s
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		ErrorRateThreshold: 0.25,
		QuotaWarnFraction:  0.9,
	})

	alerts := a.Evaluate(RunReport{
		Status:     model.RunStatusComplete,
		Summary:    summaryWith(80, 15, 5),
		QuotaUsed:  1000,
		QuotaLimit: 25000,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RowErrorRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ErrorRateThreshold: 0.25})

	alerts := a.Evaluate(RunReport{
		RunID:       "run-1",
		Spreadsheet: "sheet-123",
		Status:      model.RunStatusComplete,
		Summary:     summaryWith(6, 0, 4),
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRowErrorRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 4, alerts[0].Details["errors"])
}

func TestAlerter_Evaluate_MinimumRowsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ErrorRateThreshold: 0.25})

	alerts := a.Evaluate(RunReport{
		Status:  model.RunStatusComplete,
		Summary: summaryWith(1, 0, 3),
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_QuotaNearlyExhausted(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ErrorRateThreshold: 0.25, QuotaWarnFraction: 0.9})

	alerts := a.Evaluate(RunReport{
		Status:     model.RunStatusComplete,
		QuotaUsed:  22500,
		QuotaLimit: 25000,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertQuotaNearlyExhausted, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestAlerter_Evaluate_QuotaWarnDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ErrorRateThreshold: 0.25})

	alerts := a.Evaluate(RunReport{QuotaUsed: 25000, QuotaLimit: 25000})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ErrorRateThreshold: 0.1, QuotaWarnFraction: 0.5})

	alerts := a.Evaluate(RunReport{
		Kind:       model.RunKindAudit,
		Status:     model.RunStatusFailed,
		Err:        "sheet: flush 25 rows",
		Summary:    summaryWith(5, 0, 5),
		QuotaUsed:  20000,
		QuotaLimit: 25000,
	})
	require.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertRunFailed])
	assert.True(t, types[AlertRowErrorRate])
	assert.True(t, types[AlertQuotaNearlyExhausted])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertRunFailed, alert.Type)

		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailed, Severity: "high", Message: "boom"},
		{Type: AlertRunFailed, Severity: "high", Message: "boom again"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailed}}))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailed}}))
}

func TestAlerter_Notify(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL, ErrorRateThreshold: 0.25})
	sent := a.Notify(context.Background(), RunReport{Status: model.RunStatusFailed, Err: "store unavailable"})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}
