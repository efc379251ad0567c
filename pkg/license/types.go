package license

import "time"

// Status represents the stored state of a subscription.
type Status string

const (
	// StatusActive means the subscription is paid up.
	StatusActive Status = "active"
	// StatusPastDue means the last charge failed and the provider is retrying.
	StatusPastDue Status = "past_due"
	// StatusDeleted means the subscription was cancelled or finally failed.
	// Access is bounded by the stored expiry, not by the status alone.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusDeleted:
		return true
	}
	return false
}

// SKU is the provider-independent plan identifier. Provider normalizers map
// their plan/price IDs onto this closed set; anything else is rejected.
type SKU string

const (
	SKUIndividualMonthly SKU = "individual_monthly"
	SKUIndividualAnnual  SKU = "individual_annual"
	SKUTeamMonthly       SKU = "team_monthly"
	SKUTeamAnnual        SKU = "team_annual"
)

// IsTeam reports whether the SKU is a team plan with shared seats.
func (s SKU) IsTeam() bool {
	return s == SKUTeamMonthly || s == SKUTeamAnnual
}

// Valid reports whether s is a known SKU.
func (s SKU) Valid() bool {
	switch s {
	case SKUIndividualMonthly, SKUIndividualAnnual, SKUTeamMonthly, SKUTeamAnnual:
		return true
	}
	return false
}

// Provider identifies the payment provider a subscription was purchased
// through. Stored so support can route billing questions without guessing.
type Provider string

const (
	ProviderPaddle Provider = "paddle"
	ProviderStripe Provider = "stripe"
)

// LockDuration is how long a freed seat stays unusable after a recently
// joined member is removed from a team.
const LockDuration = 48 * time.Hour

// ExpiryGrace is the slack added on top of a stored expiry on the read path.
// Subscription data older than this past its expiry is treated as fully
// absent to bound how long stale grants remain usable offline.
const ExpiryGrace = 24 * time.Hour
