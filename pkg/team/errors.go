package team

import "errors"

var (
	// ErrNotTeamOwner rejects requests from users without an active team
	// subscription.
	ErrNotTeamOwner = errors.New("user does not own an active team subscription")

	// ErrDuplicateEntries rejects requests listing the same id or email twice.
	ErrDuplicateEntries = errors.New("duplicate entries in team update request")

	// ErrAlreadyMember rejects adding an email that already occupies a seat
	// on this team.
	ErrAlreadyMember = errors.New("email already belongs to this team")

	// ErrSeatLimitExceeded rejects updates that would grow the team beyond
	// the purchased seat quantity.
	ErrSeatLimitExceeded = errors.New("team size exceeds purchased seat quantity")

	// ErrSeatLocked rejects updates that fit the purchased quantity but not
	// the effective capacity because freed seats are still lock-protected.
	ErrSeatLocked = errors.New("freed seats are still locked for reassignment")

	// ErrInconsistentMembership signals that the owner's member list and
	// the members' own records disagree about who is on the team.
	ErrInconsistentMembership = errors.New("membership records are inconsistent")

	// ErrOnAnotherTeam rejects adding a user who already occupies a seat on
	// a different team.
	ErrOnAnotherTeam = errors.New("user already belongs to another team")

	// ErrHasSubscription rejects adding a user who holds an active,
	// unexpired independent subscription.
	ErrHasSubscription = errors.New("user holds an active independent subscription")

	// ErrPartialUpdate aggregates per-member write failures after a
	// best-effort fan-out; some members may have been updated.
	ErrPartialUpdate = errors.New("some team member updates failed")
)
