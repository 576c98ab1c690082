package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

const (
	webhookTimeout = 10 * time.Second
	// Bytes of a rejected response body kept in the returned error.
	webhookErrBody = 256
)

// WebhookSink POSTs each alert as JSON. Level and alert ID are repeated in
// headers so receivers can route without decoding the body.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: webhookTimeout}}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Send fails on transport errors and on any non-2xx response.
func (s *WebhookSink) Send(ctx context.Context, alert types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fleetmon-Level", string(alert.Level))
	if alert.AlertID != "" {
		req.Header.Set("X-Fleetmon-Alert-Id", alert.AlertID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, webhookErrBody))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
