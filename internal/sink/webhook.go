package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

// ErrWebhookStatus reports a non-2xx webhook response.
var ErrWebhookStatus = errors.New("webhook returned non-success status")

// WebhookConfig controls the outbound webhook call.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// WebhookSink posts alerts to a Slack-compatible incoming webhook.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewWebhookSink constructs a webhook sink guarded by a circuit breaker.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alert-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &WebhookSink{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    cb,
	}
}

// Deliver implements Sink.
func (w *WebhookSink) Deliver(ctx context.Context, alert models.AlertRequest) error {
	if w.url == "" {
		return utils.NewAppError("webhook.deliver", "webhook URL not configured", nil)
	}
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.post(ctx, alert)
	})
	if err != nil {
		return utils.NewAppError("webhook.deliver", string(alert.Kind), err)
	}
	return nil
}

// Payload renders the Slack-style message posted for an alert.
func Payload(alert models.AlertRequest) map[string]string {
	return map[string]string{"text": fmt.Sprintf("*%s*\n%s", alert.Title, alert.Body)}
}

func (w *WebhookSink) post(ctx context.Context, alert models.AlertRequest) error {
	body, err := json.Marshal(Payload(alert))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrWebhookStatus, resp.Status)
	}
	return nil
}
