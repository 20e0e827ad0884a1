package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/config"
	"github.com/sells-group/vitals-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRowErrorRate         AlertType = "row_error_rate"
	AlertQuotaNearlyExhausted AlertType = "quota_nearly_exhausted"
	AlertRunFailed            AlertType = "run_failed"
)

// minRowsForRate keeps tiny runs from alerting on one bad URL.
const minRowsForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunReport is what a finished run hands the alerter.
type RunReport struct {
	RunID       string
	Kind        model.RunKind
	Spreadsheet string
	Status      model.RunStatus
	Summary     *model.RunSummary
	Err         string
	QuotaUsed   int64
	QuotaLimit  int64
}

// Alerter evaluates a finished run against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the report against thresholds and returns any alerts.
func (a *Alerter) Evaluate(r RunReport) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if r.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message:  fmt.Sprintf("%s run on %s failed: %s", r.Kind, r.Spreadsheet, r.Err),
			Details: map[string]any{
				"run_id": r.RunID,
				"error":  r.Err,
			},
			Timestamp: now,
		})
	}

	if s := r.Summary; s != nil && s.Processed >= minRowsForRate && s.ErrorRate() > a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRowErrorRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Row error rate %.1f%% exceeds threshold %.1f%% (%d error / %d processed) on %s",
				s.ErrorRate()*100, a.cfg.ErrorRateThreshold*100,
				s.Errors(), s.Processed, r.Spreadsheet,
			),
			Details: map[string]any{
				"run_id":     r.RunID,
				"error_rate": s.ErrorRate(),
				"threshold":  a.cfg.ErrorRateThreshold,
				"errors":     s.Errors(),
				"processed":  s.Processed,
			},
			Timestamp: now,
		})
	}

	if r.QuotaLimit > 0 && a.cfg.QuotaWarnFraction > 0 &&
		float64(r.QuotaUsed) >= a.cfg.QuotaWarnFraction*float64(r.QuotaLimit) {
		alerts = append(alerts, Alert{
			Type:     AlertQuotaNearlyExhausted,
			Severity: "medium",
			Message: fmt.Sprintf(
				"PageSpeed daily quota at %d of %d requests",
				r.QuotaUsed, r.QuotaLimit,
			),
			Details: map[string]any{
				"used":  r.QuotaUsed,
				"limit": r.QuotaLimit,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// Notify evaluates a report and sends whatever it triggers.
func (a *Alerter) Notify(ctx context.Context, r RunReport) int {
	alerts := a.Evaluate(r)
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert triggered",
			zap.String("type", string(alert.Type)),
			zap.String("message", alert.Message),
		)
	}
	return a.SendAlerts(ctx, alerts)
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
