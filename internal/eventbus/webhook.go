package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"live777go/internal/core/domain"
)

const webhookTimeout = 5 * time.Second

// WebhookSink POSTs every event verbatim to a fixed list of URLs.
// Delivery is best-effort: a failing webhook is logged and skipped, never
// retried (spec forbids internal retries as a correctness crutch).
type WebhookSink struct {
	urls   []string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSink(urls []string, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		urls:   urls,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}
}

// Run consumes bus until ctx is cancelled, POSTing every event to every
// configured URL concurrently.
func (w *WebhookSink) Run(ctx context.Context, bus *Bus) {
	if len(w.urls) == 0 {
		return
	}
	bus.Run(ctx, func(event domain.Event) {
		body, err := json.Marshal(event)
		if err != nil {
			w.logger.Warn("failed to marshal webhook event", zap.Error(err))
			return
		}
		for _, url := range w.urls {
			go w.deliver(ctx, url, body)
		}
	})
}

func (w *WebhookSink) deliver(ctx context.Context, url string, body []byte) {
	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("failed to build webhook request", zap.String("url", url), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug("webhook delivery failed", zap.String("url", url), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Debug("webhook rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
	}
}
