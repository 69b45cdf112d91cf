package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/domain"
)

// Alert is posted when a conversation escalates or scores with high confidence.
type Alert struct {
	ConversationID int64  `json:"conversation_id"`
	Subject        string `json:"subject"`
	Anger          int    `json:"anger"`
	Urgency        int    `json:"urgency"`
	Action         string `json:"action"`
	Note           string `json:"note"`
	URL            string `json:"url,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// New returns a webhook notifier when a URL is configured, otherwise a no-op.
func New(cfg config.NotifierConfig) Notifier {
	if !cfg.Enabled() {
		return NopNotifier{}
	}
	return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout)
}

// NewAlert builds an alert from a finished analysis.
func NewAlert(conv domain.Conversation, result domain.ScoringResult, action domain.TriageAction, note, url string) Alert {
	return Alert{
		ConversationID: conv.ID,
		Subject:        conv.Subject,
		Anger:          result.AngerScore,
		Urgency:        result.UrgencyScore,
		Action:         string(action),
		Note:           note,
		URL:            url,
	}
}

type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Alert) error { return nil }
