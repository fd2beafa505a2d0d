package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
)

// WebhookChannel posts alerts to an incoming-webhook endpoint using the
// Slack-compatible {text, username, icon_emoji} payload.
type WebhookChannel struct {
	url       string
	username  string
	iconEmoji string
	secret    string
	client    *http.Client
}

// NewWebhookChannel creates a webhook channel. If secret is non-empty,
// requests are signed with HMAC-SHA256.
func NewWebhookChannel(url, username, iconEmoji, secret string) *WebhookChannel {
	if username == "" {
		username = "Cost Sentinel"
	}
	if iconEmoji == "" {
		iconEmoji = ":warning:"
	}
	return &WebhookChannel{
		url:       url,
		username:  username,
		iconEmoji: iconEmoji,
		secret:    secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, alert model.Alert) error {
	payload := webhookPayload{
		Text:      FormatText(alert),
		Username:  w.username,
		IconEmoji: w.iconEmoji,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Cost-Sentinel/1.0")

	if w.secret != "" {
		sig := computeHMAC(body, []byte(w.secret))
		req.Header.Set("X-Signature-256", "sha256="+sig)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type webhookPayload struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
