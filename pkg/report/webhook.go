package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
)

// WebhookNotifier posts a chat-compatible {"text": ...} message
type WebhookNotifier struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewWebhookNotifier creates a notifier for url
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Notify sends r. Its own timeout applies on top of ctx.
func (w *WebhookNotifier) Notify(ctx context.Context, r types.Report) error {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": Message(r)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Message renders the one-line-per-field notification text
func Message(r types.Report) string {
	icon := ":white_check_mark:"
	switch r.Status {
	case types.StatusRolledBack:
		icon = ":leftwards_arrow_with_hook:"
	case types.StatusFailed:
		icon = ":x:"
	}

	lines := []string{
		fmt.Sprintf("%s Deployment %s: %s", icon, r.DeploymentID, r.Status),
		fmt.Sprintf("Environment: %s", r.Environment),
		fmt.Sprintf("Image: %s", r.Image),
		fmt.Sprintf("Duration: %s", r.Duration.Round(time.Second)),
	}
	if len(r.Addresses) > 0 {
		lines = append(lines, "Instances: "+strings.Join(r.Addresses, ", "))
	}
	if r.FailedStage != "" {
		lines = append(lines, fmt.Sprintf("Failed stage: %s", r.FailedStage))
	}
	if r.ManualIntervention {
		lines = append(lines, "Manual intervention required")
	}
	return strings.Join(lines, "\n")
}
