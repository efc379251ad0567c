// Package team manages the shared seats of a team subscription.
//
// The owner's directory record is the authority on team shape: the ordered
// member list, the purchased seat quantity, and the license locks that keep
// recently freed seats unusable. UpdateTeam validates a bulk add/remove
// request in full before touching anything, fans the per-member writes out
// best-effort (one transient failure must not strand the other members
// half-updated), and finishes with a single owner-record write that
// recomputes the member list and the lock set.
//
// Removing a member who joined less than license.LockDuration ago records a
// lock against the freed seat, so a team cannot rotate one paid seat through
// many people in quick succession.
package team
