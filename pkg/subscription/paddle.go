package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/subsync/pkg/license"
)

// PaddleNormalizer translates Paddle webhook notifications into canonical
// events. Signature verification happens in the owning webhook handler via
// the Paddle SDK verifier; the normalizer only sees authenticated bodies.
//
// Field rules, bit-exact:
//   - subscription.created / subscription.updated: expiry is next_billed_at
//     plus 24h slack, SKU from items[0].price.id, quantity from items[0].
//   - subscription.canceled: expiry is canceled_at verbatim.
//   - transaction.payment_failed: past-due with expiry next_retry_at plus
//     24h slack when a retry is scheduled, final cancellation otherwise.
//   - adjustment.created with action "chargeback": dispute (ban side channel).
//
// Dates are RFC3339. The subscriber email rides in custom_data, where the
// checkout flow placed it.
type PaddleNormalizer struct {
	plans PlanMap
}

// NewPaddleNormalizer builds a normalizer resolving Paddle price IDs
// through plans.
func NewPaddleNormalizer(plans PlanMap) *PaddleNormalizer {
	return &PaddleNormalizer{plans: plans}
}

func (n *PaddleNormalizer) Provider() license.Provider {
	return license.ProviderPaddle
}

type paddleEnvelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type paddleSubscription struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	CustomerID   string            `json:"customer_id"`
	NextBilledAt string            `json:"next_billed_at"`
	CanceledAt   string            `json:"canceled_at"`
	CustomData   map[string]string `json:"custom_data"`
	Items        []struct {
		Quantity int `json:"quantity"`
		Price    struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

type paddleTransaction struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscription_id"`
	CustomerID     string            `json:"customer_id"`
	NextRetryAt    string            `json:"next_retry_at"`
	CustomData     map[string]string `json:"custom_data"`
}

type paddleAdjustment struct {
	Action         string            `json:"action"`
	SubscriptionID string            `json:"subscription_id"`
	CustomerID     string            `json:"customer_id"`
	CustomData     map[string]string `json:"custom_data"`
}

func (n *PaddleNormalizer) Normalize(payload []byte) (Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse paddle envelope: %w", err))
	}

	switch env.EventType {
	case "subscription.created":
		return n.subscriptionEvent(env.Data, KindCreated)
	case "subscription.updated":
		return n.subscriptionEvent(env.Data, KindRenewed)
	case "subscription.canceled":
		return n.cancellationEvent(env.Data)
	case "transaction.payment_failed":
		return n.paymentFailedEvent(env.Data)
	case "adjustment.created":
		return n.adjustmentEvent(env.Data)
	}

	return Event{}, errors.Join(ErrIgnoredEvent, fmt.Errorf("paddle event %q", env.EventType))
}

func (n *PaddleNormalizer) subscriptionEvent(data json.RawMessage, kind EventKind) (Event, error) {
	var sub paddleSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse paddle subscription: %w", err))
	}
	if sub.ID == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle subscription id missing"))
	}
	if len(sub.Items) == 0 {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle subscription has no items"))
	}

	email := sub.CustomData["email"]
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle custom_data.email missing"))
	}

	sku, err := n.plans.Resolve(sub.Items[0].Price.ID)
	if err != nil {
		return Event{}, err
	}

	// Renewal carries the next charge date; providers expose no time of
	// day, so the canonical expiry gets a day of slack.
	expiry, err := paddleDate(sub.NextBilledAt)
	if err != nil {
		return Event{}, err
	}
	if expiry == nil {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle next_billed_at missing"))
	}
	slacked := expiry.Add(24 * time.Hour)

	return Event{
		Kind:           kind,
		Email:          email,
		SubscriptionID: sub.ID,
		SKU:            sku,
		Quantity:       sub.Items[0].Quantity,
		ExpiresAt:      &slacked,
		ProviderUserID: sub.CustomerID,
		Provider:       license.ProviderPaddle,
	}, nil
}

func (n *PaddleNormalizer) cancellationEvent(data json.RawMessage) (Event, error) {
	var sub paddleSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse paddle subscription: %w", err))
	}
	if sub.ID == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle subscription id missing"))
	}

	email := sub.CustomData["email"]
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle custom_data.email missing"))
	}

	// Cancellation uses the reported effective date verbatim, no slack.
	expiry, err := paddleDate(sub.CanceledAt)
	if err != nil {
		return Event{}, err
	}
	if expiry == nil {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle canceled_at missing"))
	}

	return Event{
		Kind:           KindCancelled,
		Email:          email,
		SubscriptionID: sub.ID,
		ExpiresAt:      expiry,
		ProviderUserID: sub.CustomerID,
		Provider:       license.ProviderPaddle,
	}, nil
}

func (n *PaddleNormalizer) paymentFailedEvent(data json.RawMessage) (Event, error) {
	var txn paddleTransaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse paddle transaction: %w", err))
	}
	if txn.SubscriptionID == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle transaction has no subscription"))
	}

	email := txn.CustomData["email"]
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle custom_data.email missing"))
	}

	retry, err := paddleDate(txn.NextRetryAt)
	if err != nil {
		return Event{}, err
	}

	// No scheduled retry means the provider gave up: a final failure is a
	// cancellation with the stored expiry left untouched.
	if retry == nil {
		return Event{
			Kind:           KindCancelled,
			Email:          email,
			SubscriptionID: txn.SubscriptionID,
			ProviderUserID: txn.CustomerID,
			Provider:       license.ProviderPaddle,
		}, nil
	}

	slacked := retry.Add(24 * time.Hour)
	return Event{
		Kind:           KindPaymentFailed,
		Email:          email,
		SubscriptionID: txn.SubscriptionID,
		ExpiresAt:      &slacked,
		ProviderUserID: txn.CustomerID,
		Provider:       license.ProviderPaddle,
	}, nil
}

func (n *PaddleNormalizer) adjustmentEvent(data json.RawMessage) (Event, error) {
	var adj paddleAdjustment
	if err := json.Unmarshal(data, &adj); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse paddle adjustment: %w", err))
	}

	// Only chargebacks matter here; refunds and credits are not disputes.
	if adj.Action != "chargeback" {
		return Event{}, errors.Join(ErrIgnoredEvent, fmt.Errorf("paddle adjustment action %q", adj.Action))
	}

	email := adj.CustomData["email"]
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("paddle custom_data.email missing"))
	}

	return Event{
		Kind:           KindDisputed,
		Email:          email,
		SubscriptionID: adj.SubscriptionID,
		ProviderUserID: adj.CustomerID,
		Provider:       license.ProviderPaddle,
	}, nil
}

// paddleDate parses Paddle's RFC3339 timestamps. Empty strings map to nil;
// malformed values are validation failures.
func paddleDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("parse paddle date %q: %w", s, err))
	}
	t = t.UTC()
	return &t, nil
}
