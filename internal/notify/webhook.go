package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier posts messages to a Discord-compatible webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends one message to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(webhookPayload{Content: formatMessage(msg)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook notifier: non-2xx")
	}
	return nil
}

func formatMessage(msg Message) string {
	var b strings.Builder
	switch msg.Kind {
	case KindRegistered:
		fmt.Fprintf(&b, "New tank registered: **%s**", msg.TankName)
	case KindOnline:
		fmt.Fprintf(&b, "Tank **%s** came back ONLINE", msg.TankName)
	case KindOffline:
		fmt.Fprintf(&b, "Tank **%s** went OFFLINE", msg.TankName)
	case KindCommandSuccess:
		fmt.Fprintf(&b, "Tank **%s** executed `%s`", msg.TankName, msg.Command)
	case KindCommandFailed:
		fmt.Fprintf(&b, "Tank **%s** failed `%s`", msg.TankName, msg.Command)
	case KindOverrideSet:
		fmt.Fprintf(&b, "Override set on tank **%s**", msg.TankName)
	case KindOverrideCleared:
		fmt.Fprintf(&b, "Override cleared on tank **%s**", msg.TankName)
	default:
		fmt.Fprintf(&b, "Tank **%s**: %s", msg.TankName, msg.Kind)
	}
	if msg.Detail != "" {
		fmt.Fprintf(&b, "\n%s", msg.Detail)
	}
	if !msg.At.IsZero() {
		fmt.Fprintf(&b, "\nat %s", msg.At.UTC().Format(time.RFC3339))
	}
	return b.String()
}
