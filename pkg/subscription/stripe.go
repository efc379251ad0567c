package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/subsync/pkg/license"
)

// StripeNormalizer translates Stripe webhook events into canonical events.
// The owning handler verifies the Stripe-Signature header before the body
// reaches the normalizer.
//
// Field rules, bit-exact:
//   - customer.subscription.created / updated: expiry is current_period_end
//     plus 24h slack, SKU from items.data[0].price.id.
//   - customer.subscription.deleted: expiry is ended_at (or canceled_at)
//     verbatim.
//   - invoice.payment_failed: past-due with expiry next_payment_attempt plus
//     24h slack when Stripe scheduled a retry, final cancellation otherwise.
//   - charge.dispute.created: dispute (ban side channel), email from the
//     dispute evidence.
//
// Stripe dates are Unix seconds. The subscriber email rides in the
// subscription metadata, where the checkout flow placed it;
// invoice.payment_failed carries customer_email natively.
type StripeNormalizer struct {
	plans PlanMap
}

// NewStripeNormalizer builds a normalizer resolving Stripe price IDs
// through plans.
func NewStripeNormalizer(plans PlanMap) *StripeNormalizer {
	return &StripeNormalizer{plans: plans}
}

func (n *StripeNormalizer) Provider() license.Provider {
	return license.ProviderStripe
}

type stripeSubscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	CanceledAt       int64             `json:"canceled_at"`
	EndedAt          int64             `json:"ended_at"`
	Quantity         int               `json:"quantity"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			Quantity int `json:"quantity"`
			Price    struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	Customer           string `json:"customer"`
	CustomerEmail      string `json:"customer_email"`
	Subscription       string `json:"subscription"`
	NextPaymentAttempt int64  `json:"next_payment_attempt"`
}

type stripeDispute struct {
	Charge   string `json:"charge"`
	Evidence struct {
		CustomerEmailAddress string `json:"customer_email_address"`
	} `json:"evidence"`
}

func (n *StripeNormalizer) Normalize(payload []byte) (Event, error) {
	var evt stripelib.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse stripe event: %w", err))
	}
	if evt.Data == nil {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe event has no data"))
	}

	switch evt.Type {
	case "customer.subscription.created":
		return n.subscriptionEvent(evt.Data.Raw, KindCreated)
	case "customer.subscription.updated":
		return n.subscriptionEvent(evt.Data.Raw, KindRenewed)
	case "customer.subscription.deleted":
		return n.cancellationEvent(evt.Data.Raw)
	case "invoice.payment_failed":
		return n.paymentFailedEvent(evt.Data.Raw)
	case "charge.dispute.created":
		return n.disputeEvent(evt.Data.Raw)
	}

	return Event{}, errors.Join(ErrIgnoredEvent, fmt.Errorf("stripe event %q", evt.Type))
}

func (n *StripeNormalizer) subscriptionEvent(raw json.RawMessage, kind EventKind) (Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse stripe subscription: %w", err))
	}
	if sub.ID == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe subscription id missing"))
	}
	if len(sub.Items.Data) == 0 {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe subscription has no items"))
	}

	email := sub.Metadata["email"]
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe metadata.email missing"))
	}

	sku, err := n.plans.Resolve(sub.Items.Data[0].Price.ID)
	if err != nil {
		return Event{}, err
	}

	if sub.CurrentPeriodEnd == 0 {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe current_period_end missing"))
	}
	expiry := stripeDate(sub.CurrentPeriodEnd).Add(24 * time.Hour)

	quantity := sub.Quantity
	if quantity == 0 {
		quantity = sub.Items.Data[0].Quantity
	}

	return Event{
		Kind:           kind,
		Email:          email,
		SubscriptionID: sub.ID,
		SKU:            sku,
		Quantity:       quantity,
		ExpiresAt:      &expiry,
		ProviderUserID: sub.Customer,
		Provider:       license.ProviderStripe,
	}, nil
}

func (n *StripeNormalizer) cancellationEvent(raw json.RawMessage) (Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse stripe subscription: %w", err))
	}
	if sub.ID == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe subscription id missing"))
	}

	email := sub.Metadata["email"]
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe metadata.email missing"))
	}

	effective := sub.EndedAt
	if effective == 0 {
		effective = sub.CanceledAt
	}
	if effective == 0 {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe cancellation date missing"))
	}
	expiry := stripeDate(effective)

	return Event{
		Kind:           KindCancelled,
		Email:          email,
		SubscriptionID: sub.ID,
		ExpiresAt:      &expiry,
		ProviderUserID: sub.Customer,
		Provider:       license.ProviderStripe,
	}, nil
}

func (n *StripeNormalizer) paymentFailedEvent(raw json.RawMessage) (Event, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse stripe invoice: %w", err))
	}
	if inv.Subscription == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe invoice has no subscription"))
	}
	if inv.CustomerEmail == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe customer_email missing"))
	}

	if inv.NextPaymentAttempt == 0 {
		return Event{
			Kind:           KindCancelled,
			Email:          inv.CustomerEmail,
			SubscriptionID: inv.Subscription,
			ProviderUserID: inv.Customer,
			Provider:       license.ProviderStripe,
		}, nil
	}

	expiry := stripeDate(inv.NextPaymentAttempt).Add(24 * time.Hour)
	return Event{
		Kind:           KindPaymentFailed,
		Email:          inv.CustomerEmail,
		SubscriptionID: inv.Subscription,
		ExpiresAt:      &expiry,
		ProviderUserID: inv.Customer,
		Provider:       license.ProviderStripe,
	}, nil
}

func (n *StripeNormalizer) disputeEvent(raw json.RawMessage) (Event, error) {
	var dis stripeDispute
	if err := json.Unmarshal(raw, &dis); err != nil {
		return Event{}, errors.Join(ErrValidation, fmt.Errorf("parse stripe dispute: %w", err))
	}

	email := dis.Evidence.CustomerEmailAddress
	if email == "" {
		return Event{}, errors.Join(ErrValidation, errors.New("stripe dispute evidence email missing"))
	}

	return Event{
		Kind:     KindDisputed,
		Email:    email,
		Provider: license.ProviderStripe,
	}, nil
}

func stripeDate(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
