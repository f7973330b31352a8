package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

type markdownMessage struct {
	MsgType  string       `json:"msgtype"`
	Markdown markdownBody `json:"markdown"`
}

type markdownBody struct {
	Text string `json:"text"`
}

// WebhookSender posts the report as a markdown message.
type WebhookSender struct {
	Client *http.Client
}

// Send posts to ch.WebhookURL. Any 2xx status is success.
func (w *WebhookSender) Send(ctx context.Context, ch model.PushChannel, report *model.DigestReport) (string, error) {
	if ch.WebhookURL == "" {
		return "", fmt.Errorf("channel %s has no webhook url", ch.ID)
	}
	payload, err := json.Marshal(markdownMessage{
		MsgType:  "markdown",
		Markdown: markdownBody{Text: report.ReportContent},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	body := readBounded(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("webhook returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func readBounded(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxResponseBytes))
	return strings.TrimSpace(string(b))
}
