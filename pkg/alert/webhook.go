package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/subsync/pkg/retry"
)

// WebhookReporter posts alerts as JSON to an operator webhook (a chat
// integration or an incident tracker). Delivery runs in the background with
// bounded retries; failures are logged and dropped, never surfaced to the
// operation that raised the alert.
type WebhookReporter struct {
	url     string
	client  *http.Client
	policy  retry.Policy
	log     *slog.Logger
	timeout time.Duration
}

// NewWebhookReporter returns a Reporter delivering to url.
func NewWebhookReporter(url string, log *slog.Logger) *WebhookReporter {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookReporter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Exponential{InitialInterval: time.Second, JitterFactor: 0.2},
			IsRetryable: func(err error) bool {
				var se *deliveryError
				if errors.As(err, &se) {
					return se.status >= 500 || se.status == http.StatusTooManyRequests
				}
				return true
			},
		},
		log:     log,
		timeout: time.Minute,
	}
}

type deliveryError struct {
	status int
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("alert webhook responded %d", e.status)
}

// Report delivers the alert asynchronously. The background attempt is given
// its own deadline, detached from the caller's context, so alerts outlive
// short-lived request contexts.
func (r *WebhookReporter) Report(ctx context.Context, a Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		r.log.ErrorContext(ctx, "encode alert", slog.Any("error", err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := r.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}()

			if resp.StatusCode >= 400 {
				return &deliveryError{status: resp.StatusCode}
			}
			return nil
		})
		if err != nil {
			r.log.Error("alert delivery failed",
				slog.String("alert_kind", a.Kind),
				slog.Any("error", err),
			)
		}
	}()
}
