package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const slackTimeout = 10 * time.Second

// SlackNotifier posts run notifications to an incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// SlackMessage is the webhook payload
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment carries the run details beneath the headline
type SlackAttachment struct {
	Color  string       `json:"color"`
	Text   string       `json:"text"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField is one short key/value pair in an attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates a notifier for webhookURL; an empty URL disables it
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: slackTimeout},
		now:        time.Now,
	}
}

// slackColor maps a notification type onto an attachment colour
func slackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

func (s *SlackNotifier) message(n Notification) SlackMessage {
	att := SlackAttachment{
		Color:  slackColor(n.Type),
		Text:   n.Message,
		Footer: "musicgen-worker",
		Ts:     s.now().Unix(),
	}
	if n.RunID != "" {
		att.Fields = append(att.Fields, SlackField{Title: "Run", Value: n.RunID, Short: true})
	}
	if n.ReportKey != "" {
		att.Fields = append(att.Fields, SlackField{Title: "Cost report", Value: n.ReportKey, Short: true})
	}
	return SlackMessage{Text: n.Title, Attachments: []SlackAttachment{att}}
}

// Send posts n to the webhook
func (s *SlackNotifier) Send(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(s.message(n))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
