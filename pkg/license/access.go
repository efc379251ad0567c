package license

import (
	"slices"
	"time"
)

// Access is the resolved subscription a user effectively holds. For team
// members the fields are delegated from the owner record.
type Access struct {
	Status    Status     `json:"status"`
	SKU       SKU        `json:"sku"`
	ExpiresAt *time.Time `json:"expiry,omitempty"`
	Provider  Provider   `json:"provider,omitempty"`
}

// EffectiveAccess resolves the subscription userID actually holds at now.
//
// The owner argument is the metadata of the user's team owner: the user's
// own record when they own a team, the referenced owner's record when they
// are a member, and ignored otherwise. Returns false when the user holds no
// usable subscription.
//
// Owners get no personal access from their own subscription fields; they
// must occupy one of their own seats like any other member. A member's seat
// only counts while its index in the owner's member list fits within the
// owner's effective capacity, so seats beyond the paid (and unlocked)
// quantity silently stop granting access instead of over-provisioning.
func EffectiveAccess(userID string, m, owner Metadata, now time.Time) (Access, bool) {
	switch m.Variant() {
	case VariantIndividual:
		if !m.UsableAt(now) {
			return Access{}, false
		}
		return Access{
			Status:    m.Status,
			SKU:       m.SKU,
			ExpiresAt: m.ExpiresAt,
			Provider:  m.Provider,
		}, true

	case VariantTeamMember, VariantTeamOwner:
		return delegated(userID, owner, now)
	}

	return Access{}, false
}

// delegated resolves seat-based access from the owner record.
func delegated(userID string, owner Metadata, now time.Time) (Access, bool) {
	if !owner.UsableAt(now) {
		return Access{}, false
	}

	idx := slices.Index(owner.TeamMemberIDs, userID)
	if idx < 0 || idx >= owner.EffectiveCapacity(now) {
		return Access{}, false
	}

	return Access{
		Status:    owner.Status,
		SKU:       owner.SKU,
		ExpiresAt: owner.ExpiresAt,
		Provider:  owner.Provider,
	}, true
}
