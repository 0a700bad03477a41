package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

// WebhookNotifier posts notifications as JSON to a URL
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// WebhookPayload is the body sent to the webhook
type WebhookPayload struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Tasks     int    `json:"tasks,omitempty"`
	Cost      string `json:"cost_usd,omitempty"`
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PayloadFor converts a notification to the webhook body
func PayloadFor(n Notification) WebhookPayload {
	p := WebhookPayload{
		Type:      n.Type.String(),
		Title:     n.Title,
		Message:   n.Message,
		ProjectID: n.ProjectID,
	}
	if n.Run != nil {
		success := n.Run.Success
		p.RunID = n.Run.ID
		p.Success = &success
		p.Tasks = n.Run.TaskCount
		p.Cost = n.Run.Cost.StringFixed(4)
	}
	return p
}

// Send posts the notification
func (w *WebhookNotifier) Send(n Notification) error {
	if w.url == "" {
		return nil // Disabled
	}

	payload, err := json.Marshal(PayloadFor(n))
	if err != nil {
		return err
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook returned %d", resp.StatusCode)
	}

	return nil
}
