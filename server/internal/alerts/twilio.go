package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/vitalstream/vitalstream/server/internal/config"
)

const twilioBaseURL = "https://api.twilio.com"

// Twilio sends alerts as WhatsApp or SMS messages through the Twilio
// Messages API.
type Twilio struct {
	client  *resty.Client
	baseURL string
	sid     string
	token   string
	from    string
	to      string
}

// NewTwilio creates a Twilio notifier. Credentials are resolved from the
// environment at construction time.
func NewTwilio(client *resty.Client, cfg config.TwilioConfig) *Twilio {
	base := cfg.BaseURL
	if base == "" {
		base = twilioBaseURL
	}
	return &Twilio{
		client:  client,
		baseURL: strings.TrimRight(base, "/"),
		sid:     cfg.AccountSID(),
		token:   cfg.AuthToken(),
		from:    cfg.From,
		to:      cfg.To,
	}
}

// Name returns "twilio".
func (t *Twilio) Name() string { return "twilio" }

// Send creates one message whose body is the alert summary.
func (t *Twilio) Send(ctx context.Context, a *Alert) error {
	url := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.sid)
	resp, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(t.sid, t.token).
		SetFormData(map[string]string{
			"From": t.from,
			"To":   t.to,
			"Body": a.Message,
		}).
		Post(url)
	if err != nil {
		return fmt.Errorf("twilio: post message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("twilio: HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
