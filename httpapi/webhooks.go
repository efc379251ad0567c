package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// webhookBodyLimit caps webhook payloads; provider events are small and an
// unbounded read is an easy DoS.
const webhookBodyLimit = 1 << 20

// Reconciler is the webhook handlers' view of the subscription reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, event subscription.Event) error
}

type webhookReceived struct {
	Received bool `json:"received"`
}

// WebhookHandler serves one provider's webhook endpoint: verify the payload
// signature, normalize into a canonical event, reconcile.
type WebhookHandler struct {
	verify     func(r *http.Request, payload []byte) error
	normalizer subscription.Normalizer
	reconciler Reconciler
	log        *slog.Logger
}

// NewPaddleWebhookHandler builds the Paddle endpoint. The webhook secret
// feeds the SDK's signature verifier.
func NewPaddleWebhookHandler(secret string, n *subscription.PaddleNormalizer, r Reconciler, log *slog.Logger) *WebhookHandler {
	verifier := paddle.NewWebhookVerifier(secret)
	return &WebhookHandler{
		verify: func(req *http.Request, payload []byte) error {
			// The SDK verifier consumes a request body, so it gets a copy
			// carrying the original signature header.
			vr, err := http.NewRequestWithContext(req.Context(), http.MethodPost, req.URL.String(), bytes.NewReader(payload))
			if err != nil {
				return err
			}
			vr.Header.Set("Paddle-Signature", req.Header.Get("Paddle-Signature"))

			ok, err := verifier.Verify(vr)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("paddle signature mismatch")
			}
			return nil
		},
		normalizer: n,
		reconciler: r,
		log:        logOrDefault(log),
	}
}

// NewStripeWebhookHandler builds the Stripe endpoint.
func NewStripeWebhookHandler(secret string, n *subscription.StripeNormalizer, r Reconciler, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verify: func(req *http.Request, payload []byte) error {
			_, err := stripewebhook.ConstructEventWithOptions(
				payload,
				req.Header.Get("Stripe-Signature"),
				secret,
				stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
			)
			return err
		},
		normalizer: n,
		reconciler: r,
		log:        logOrDefault(log),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.verify(r, payload); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	event, err := h.normalizer.Normalize(payload)
	if err != nil {
		// Untracked event types are acknowledged so the provider stops
		// redelivering them.
		if errors.Is(err, subscription.ErrIgnoredEvent) {
			writeJSON(w, http.StatusOK, webhookReceived{Received: true})
			return
		}
		h.log.WarnContext(r.Context(), "webhook payload rejected",
			logger.Provider(h.normalizer.Provider()),
			logger.Error(err),
		)
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if err := h.reconciler.Reconcile(r.Context(), event); err != nil {
		h.log.ErrorContext(r.Context(), "webhook reconciliation failed",
			logger.Provider(event.Provider),
			logger.EventKind(event.Kind),
			logger.SubscriptionID(event.SubscriptionID),
			logger.Error(err),
		)
		writeError(w, statusFor(err), "event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, webhookReceived{Received: true})
}

func logOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
