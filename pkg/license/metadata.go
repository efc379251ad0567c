package license

import (
	"slices"
	"time"
)

// Variant identifies which shape of the metadata record applies. Exactly one
// variant applies at a time; conversions happen only through the transition
// methods below.
type Variant string

const (
	VariantNone       Variant = "none"
	VariantIndividual Variant = "individual"
	VariantTeamOwner  Variant = "team_owner"
	VariantTeamMember Variant = "team_member"
)

// Metadata is the per-user record stored in the external user directory.
// Field presence follows the variant: subscription fields for individual
// subscribers and team owners, team fields for owners only, owner reference
// for members only. Banned is independent of the subscription lifecycle.
type Metadata struct {
	Status         Status     `json:"subscription_status,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	SKU            SKU        `json:"subscription_sku,omitempty"`
	ExpiresAt      *time.Time `json:"subscription_expiry,omitempty"`
	Quantity       int        `json:"subscription_quantity,omitempty"`
	Provider       Provider   `json:"payment_provider,omitempty"`

	// Team owner only.
	TeamMemberIDs  []string `json:"team_member_ids,omitempty"`
	LockedLicenses Locks    `json:"locked_licenses,omitempty"`

	// Team member only.
	OwnerID      string     `json:"subscription_owner_id,omitempty"`
	JoinedTeamAt *time.Time `json:"joined_team_at,omitempty"`

	Banned bool `json:"banned,omitempty"`
}

// NoSubscription returns the empty record for a freshly provisioned user.
func NoSubscription() Metadata {
	return Metadata{}
}

// NewIndividualSubscriber builds the record for a user with their own paid
// individual plan.
func NewIndividualSubscriber(subID string, sku SKU, status Status, expiresAt time.Time, provider Provider) Metadata {
	return Metadata{
		Status:         status,
		SubscriptionID: subID,
		SKU:            sku,
		ExpiresAt:      &expiresAt,
		Provider:       provider,
	}
}

// NewTeamOwner builds the record for the purchaser of a team plan. The
// member list starts empty; the owner holds no personal access until they
// occupy one of their own seats.
func NewTeamOwner(subID string, sku SKU, status Status, expiresAt time.Time, quantity int, provider Provider) Metadata {
	return Metadata{
		Status:         status,
		SubscriptionID: subID,
		SKU:            sku,
		ExpiresAt:      &expiresAt,
		Quantity:       quantity,
		Provider:       provider,
		TeamMemberIDs:  []string{},
	}
}

// NewTeamMember builds the record for a user occupying a seat on ownerID's
// team.
func NewTeamMember(ownerID string, joinedAt time.Time) Metadata {
	return Metadata{
		OwnerID:      ownerID,
		JoinedTeamAt: &joinedAt,
	}
}

// Variant reports which shape the record currently has.
func (m Metadata) Variant() Variant {
	switch {
	case m.OwnerID != "":
		return VariantTeamMember
	case m.SubscriptionID != "" && m.SKU.IsTeam():
		return VariantTeamOwner
	case m.SubscriptionID != "":
		return VariantIndividual
	}
	return VariantNone
}

// LeftTeam is the member→none transition: the record with the owner
// reference and join timestamp cleared. Subscription fields, if any were
// being merged in by the caller, are untouched.
func (m Metadata) LeftTeam() Metadata {
	m.OwnerID = ""
	m.JoinedTeamAt = nil
	return m
}

// HasMember reports whether id currently occupies a seat on this team.
func (m Metadata) HasMember(id string) bool {
	return slices.Contains(m.TeamMemberIDs, id)
}

// EffectiveCapacity is the number of seats usable at now: the purchased
// quantity minus seats blocked by active license locks.
func (m Metadata) EffectiveCapacity(now time.Time) int {
	return m.Quantity - m.LockedLicenses.ActiveCount(now)
}

// ActiveAt reports whether the subscription on this record is active and
// unexpired at now.
func (m Metadata) ActiveAt(now time.Time) bool {
	return m.Status == StatusActive && m.ExpiresAt != nil && m.ExpiresAt.After(now)
}

// UsableAt reports whether the stored subscription data may still grant
// access at now, allowing ExpiryGrace of slack past the recorded expiry.
// Beyond that the data is treated as absent, not merely expired.
func (m Metadata) UsableAt(now time.Time) bool {
	return m.ExpiresAt != nil && now.Before(m.ExpiresAt.Add(ExpiryGrace))
}

// RemainingAt returns how long the subscription has left at now. Negative
// when already expired, zero when no expiry is recorded.
func (m Metadata) RemainingAt(now time.Time) time.Duration {
	if m.ExpiresAt == nil {
		return 0
	}
	return m.ExpiresAt.Sub(now)
}
