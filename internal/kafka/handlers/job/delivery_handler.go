package job

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// SecretHeader carries the shared secret on every delivery attempt.
const SecretHeader = "X-API-Secret"

// DeliveryHandler bridges the queue to the pipeline webhook: each
// consumed message is delivered as an HTTP POST to the configured
// callback URL with the shared-secret header attached, under a bounded
// retry budget. The handler never executes jobs itself, so the broker
// can be swapped for a managed push queue without touching the worker.
type DeliveryHandler struct {
	callbackURL string
	secret      string
	strategy    retry.Strategy
	client      *http.Client
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(callbackURL, secret string, s retry.Strategy) *DeliveryHandler {
	return &DeliveryHandler{
		callbackURL: callbackURL,
		secret:      secret,
		strategy:    s,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
}

// Handle posts the raw task message to the callback endpoint. A 2xx
// response means the job was executed (or idempotently acknowledged); a
// 4xx response will never succeed on retry and is treated as delivered
// so the message is not redelivered forever. 5xx and transport errors
// exhaust the retry budget and leave the message uncommitted, so the
// broker redelivers it later — at-least-once, duplicates possible.
func (h *DeliveryHandler) Handle(ctx context.Context, msg kafka.Message) error {
	err := retry.Do(func() error {
		return h.deliver(ctx, msg.Value)
	}, h.strategy)
	if err != nil {
		return fmt.Errorf("deliver callback: %w", err)
	}

	return nil
}

func (h *DeliveryHandler) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, h.secret)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post callback: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode < 500:
		// Rejected by the worker (auth or validation); retrying the
		// same payload cannot change the outcome.
		zlog.Logger.Warn().
			Int("status", resp.StatusCode).
			Msg("callback rejected delivery, dropping message")
		return nil
	default:
		return fmt.Errorf("callback returned HTTP %d", resp.StatusCode)
	}
}
