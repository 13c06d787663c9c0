package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Webhook posts alerts to a Slack, Teams or generic HTTP endpoint.
type Webhook struct {
	client *resty.Client
	kind   string
	url    string
}

// NewWebhook creates a webhook notifier. kind is one of: slack | teams | http.
func NewWebhook(client *resty.Client, kind, url string) *Webhook {
	return &Webhook{client: client, kind: kind, url: url}
}

// Name returns "webhook:<kind>".
func (w *Webhook) Name() string { return "webhook:" + w.kind }

// Send posts a JSON payload shaped for the target type.
func (w *Webhook) Send(ctx context.Context, a *Alert) error {
	var body interface{}
	switch w.kind {
	case "slack":
		body = map[string]string{"text": "*[CRITICAL]* " + a.Message}
	case "teams":
		body = map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": "FF4F6A",
			"summary":    "Patient alert",
			"title":      fmt.Sprintf("Patient alert: %s", a.PatientID),
			"text":       strings.Join(a.Alerts, "<br>") + "<br><br>" + a.Message,
		}
	default:
		body = map[string]interface{}{"alert": a}
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}
