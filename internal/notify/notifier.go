package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/metrics"
)

// WebhookJobType is the background job type that delivers one event to the webhook.
const WebhookJobType = "notify.webhook"

// Enqueuer persists a background job; the worker pool satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error)
}

type webhookPayload struct {
	URL   string `json:"url"`
	Event Event  `json:"event"`
}

// Notifier stamps, renders and distributes lifecycle events.
type Notifier struct {
	broker     *Broker
	queue      Enqueuer
	webhookURL string
	logger     *slog.Logger
	now        func() time.Time
}

// NewNotifier returns a notifier publishing to broker. Webhook delivery is
// enabled when both queue and webhookURL are set.
func NewNotifier(broker *Broker, queue Enqueuer, webhookURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{broker: broker, queue: queue, webhookURL: webhookURL, logger: logger, now: time.Now}
}

// Publish never fails the caller: the transition it reports is already committed.
func (n *Notifier) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = n.now().UTC()
	}
	if e.Message == "" {
		msg, err := RenderMessage(e)
		if err != nil {
			n.logger.Error("notify: render message", "kind", e.Kind, "err", err)
		}
		e.Message = msg
	}

	if n.broker != nil {
		n.broker.Publish(e)
	}
	if n.queue == nil || n.webhookURL == "" || e.Kind == KindStoreChanged {
		return
	}
	// The transition is committed; the request ending must not drop its webhook.
	if _, err := n.queue.Enqueue(context.WithoutCancel(ctx), WebhookJobType, webhookPayload{URL: n.webhookURL, Event: e}, 50, 5); err != nil {
		n.logger.Error("notify: enqueue webhook", "kind", e.Kind, "job_id", e.JobID, "err", err)
	}
}

// WebhookHandler returns the worker handler that POSTs a queued event to its
// webhook. Any non-2xx answer is an error so the worker retries with backoff.
func WebhookHandler(client *http.Client) func(ctx context.Context, j *models.BackgroundJob) error {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, j *models.BackgroundJob) error {
		var pl webhookPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return fmt.Errorf("decode webhook payload: %w", err)
		}
		body, err := json.Marshal(pl.Event)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, pl.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-ID", pl.Event.ID)

		resp, err := client.Do(req)
		if err != nil {
			metrics.IncreaseWebhookDeliveries(metrics.OutcomeError)
			return fmt.Errorf("deliver webhook: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			metrics.IncreaseWebhookDeliveries(metrics.OutcomeRejected)
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		metrics.IncreaseWebhookDeliveries(metrics.OutcomeOK)
		return nil
	}
}
