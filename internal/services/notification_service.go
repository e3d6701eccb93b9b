package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/adapters"
	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
)

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	executor   *adapters.Executor
	logger     *logger.Logger
}

// NewSlackNotifier returns nil when no webhook is configured
func NewSlackNotifier(webhookURL, channel string, executor *adapters.Executor, log *logger.Logger) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	if executor == nil {
		executor = adapters.NewExecutor(adapters.DefaultRetryPolicy(), adapters.WithExecutorLogger(log))
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		executor:   executor,
		logger:     log,
	}
}

// Notify sends one alert
func (n *SlackNotifier) Notify(ctx context.Context, a *alert.Alert) error {
	if err := n.executor.DoJSON(ctx, http.MethodPost, n.webhookURL, nil, n.buildMessage(a), nil); err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}

	n.logger.WithFields(map[string]interface{}{
		"alert_id":  a.ID,
		"tenant_id": a.TenantID,
		"type":      a.Type,
	}).Info("Slack notification sent")
	return nil
}

// buildMessage builds a Slack message payload
func (n *SlackNotifier) buildMessage(a *alert.Alert) map[string]interface{} {
	color := "#36a64f"
	switch a.Severity {
	case alert.SeverityCritical:
		color = "#ff0000"
	case alert.SeverityError:
		color = "#ff8c00"
	case alert.SeverityWarning:
		color = "#ffcc00"
	}

	emoji := ":bell:"
	switch a.Type {
	case alert.TypeScoreDegradation, alert.TypeControlDrift:
		emoji = ":chart_with_downwards_trend:"
	case alert.TypeEvidenceExpiring, alert.TypeEvidenceExpired:
		emoji = ":hourglass:"
	case alert.TypeRemediationOverdue:
		emoji = ":construction:"
	case alert.TypeAdapterUnhealthy:
		emoji = ":electric_plug:"
	}

	fields := []map[string]interface{}{
		{"title": "Tenant", "value": a.TenantID, "short": true},
		{"title": "Severity", "value": string(a.Severity), "short": true},
	}
	if a.Framework != "" {
		fields = append(fields, map[string]interface{}{"title": "Framework", "value": a.Framework, "short": true})
	}
	if a.EscalationLevel > 0 {
		fields = append(fields, map[string]interface{}{"title": "Escalation", "value": a.EscalationLevel, "short": true})
	}

	msg := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  fmt.Sprintf("%s %s", emoji, a.Title),
				"text":   a.Message,
				"fields": fields,
				"footer": "complyflow",
				"ts":     time.Now().Unix(),
			},
		},
	}
	if n.channel != "" {
		msg["channel"] = n.channel
	}
	return msg
}
