package subscription

import "errors"

var (
	// ErrValidation marks a webhook payload with missing or malformed
	// required fields. The webhook is rejected, never silently ignored.
	ErrValidation = errors.New("invalid webhook payload")

	// ErrUnknownPlan marks a provider plan identifier with no SKU mapping.
	// Always joined with ErrValidation: an unmapped plan is a configuration
	// bug, not an ignorable event.
	ErrUnknownPlan = errors.New("unknown provider plan identifier")

	// ErrIgnoredEvent marks provider event types this system deliberately
	// does not track. Handlers acknowledge these with success.
	ErrIgnoredEvent = errors.New("provider event type not tracked")

	// ErrMemberConflict rejects a subscription event for a user whose team
	// access is still valid; applying it would double-bill the user.
	ErrMemberConflict = errors.New("user still holds valid team access")
)
