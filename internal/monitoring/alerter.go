// Package monitoring raises webhook alerts when a scoring run looks unhealthy.
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

	"github.com/sells-group/eva-cli/internal/config"
	"github.com/sells-group/eva-cli/internal/engine"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertRunCanceled    AlertType = "run_canceled"
	AlertNoCandidates   AlertType = "no_candidates"
)

// minProcessed is the number of processed candidates below which the
// failure rate is too noisy to alert on.
const minProcessed = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run stats against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the stats of one run and returns any alerts.
func (a *Alerter) Evaluate(s *engine.RunStats) []Alert {
	if s == nil {
		return nil
	}
	var alerts []Alert
	now := a.now().UTC()

	processed := s.Scored + s.Failed
	if processed >= minProcessed {
		rate := float64(s.Failed) / float64(processed)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRunFailureRate,
				Severity: "high",
				RunID:    s.RunID,
				Message: fmt.Sprintf(
					"Scoring failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed)",
					rate*100, a.cfg.FailureRateThreshold*100, s.Failed, processed,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       s.Failed,
					"processed":    processed,
				},
				Timestamp: now,
			})
		}
	}

	if s.Canceled {
		alerts = append(alerts, Alert{
			Type:     AlertRunCanceled,
			Severity: "medium",
			RunID:    s.RunID,
			Message:  fmt.Sprintf("Scoring run canceled after %d of %d candidates", s.Scored+s.Failed+s.Skipped, s.Candidates),
			Details: map[string]any{
				"candidates": s.Candidates,
				"scored":     s.Scored,
			},
			Timestamp: now,
		})
	}

	if a.cfg.AlertOnEmpty && s.Candidates == 0 && !s.Canceled {
		alerts = append(alerts, Alert{
			Type:      AlertNoCandidates,
			Severity:  "medium",
			RunID:     s.RunID,
			Message:   "Scoring run found no candidates in the window; the candidate view may be stale",
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

// sendWebhook posts a single alert to the webhook URL.
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
