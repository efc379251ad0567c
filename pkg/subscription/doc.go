// Package subscription turns provider webhook payloads into updates of the
// canonical per-user subscription record stored in the external user
// directory.
//
// Two payment providers (Paddle and Stripe) deliver notifications
// asynchronously, possibly duplicated and possibly out of order. Each
// provider has a Normalizer translating its wire format into a canonical
// Event; the Reconciler then applies the event to the user's metadata
// record, tolerating duplicates (idempotent per subscription and kind) and
// reordering (latest expiry wins, stale events are discarded silently).
//
// # Expiry slack
//
// Providers report the next charge date without a time of day, so a renewal
// can land up to a day after the reported midnight boundary. Normalizers add
// exactly 24 hours of slack to next-charge and retry dates. Cancellation
// effective dates are taken verbatim.
//
// # Conflicting subscriptions
//
// When an event carries a different subscription ID than the one on record,
// the reconciler keeps whichever subscription expires later. If the existing
// subscription is healthy and has more than five days left, the update is
// still applied but a double-checkout alert is raised so an operator can
// refund the loser. A team member receiving an individual subscription while
// their team access is still valid is rejected outright to prevent double
// billing.
package subscription
