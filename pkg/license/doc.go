// Package license holds the canonical subscription-state model shared by the
// webhook reconciler and the team seat manager.
//
// The single source of truth for a user's subscription is a metadata record
// stored in an external user directory. The record's shape depends on the
// user's role: no subscription at all, an individual subscriber, the owner of
// a team subscription, or the member of someone else's team. Rather than
// probing optional fields all over the codebase, the package models the
// record as a tagged union (Metadata plus Variant) with named constructors
// and explicit transition methods; callers switch on Variant() and convert
// between variants only at the defined transition points.
//
// # Seats and locks
//
// A team subscription carries a seat quantity. Removing a member who joined
// less than LockDuration ago records a license lock: a timestamp that keeps
// the freed seat unusable until the lock expires. Locks make rotating a
// single paid seat through many people economically pointless while leaving
// genuine infrequent turnover unpunished. Expired locks are garbage and are
// pruned on every owner-record write.
//
// # Effective access
//
// EffectiveAccess answers the only question the read path cares about: what
// subscription, if any, does this user actually hold right now? Team owners
// have no personal access unless they occupy one of their own seats, members
// delegate to the owner record but only while their seat index fits within
// the owner's effective capacity, and any grant more than a day past its
// expiry is treated as absent rather than merely expired.
package license
