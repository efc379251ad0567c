package subscription

import (
	"time"

	"github.com/dmitrymomot/subsync/pkg/license"
)

// EventKind is the closed set of canonical subscription lifecycle changes.
type EventKind string

const (
	KindCreated       EventKind = "created"
	KindRenewed       EventKind = "renewed"
	KindCancelled     EventKind = "cancelled"
	KindPaymentFailed EventKind = "payment_failed"
	KindDisputed      EventKind = "disputed"
)

// Event is the provider-independent representation of a subscription
// lifecycle change. Immutable once produced by a normalizer.
type Event struct {
	Kind           EventKind
	Email          string
	SubscriptionID string
	SKU            license.SKU
	// Quantity is the purchased seat count; zero when the event does not
	// carry one.
	Quantity int
	// ExpiresAt is the canonical expiry: next-charge or retry date plus a
	// day of slack, or the verbatim effective date for cancellations. Nil
	// when the event carries no date, in which case the stored expiry is
	// left untouched.
	ExpiresAt      *time.Time
	ProviderUserID string
	Provider       license.Provider
}

// Status returns the subscription status the event drives the record to.
func (e Event) Status() license.Status {
	switch e.Kind {
	case KindCreated, KindRenewed:
		return license.StatusActive
	case KindPaymentFailed:
		return license.StatusPastDue
	case KindCancelled:
		return license.StatusDeleted
	}
	return ""
}

// Normalizer translates one provider's webhook wire format into canonical
// events. Normalizers run after the owning webhook handler has verified the
// payload's authenticity.
type Normalizer interface {
	// Provider identifies which payment provider this normalizer handles.
	Provider() license.Provider

	// Normalize parses a verified raw webhook body. Fails with
	// ErrValidation when required fields are missing or malformed. Returns
	// ErrIgnoredEvent for provider event types this system does not track.
	Normalize(payload []byte) (Event, error)
}
