package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/subsync/pkg/alert"
	"github.com/dmitrymomot/subsync/pkg/async"
	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/license"
)

// Update is a bulk team membership change request.
type Update struct {
	IDsToRemove []string
	EmailsToAdd []string
}

// Manager validates and executes team membership changes against the user
// directory. Stateless; safe for concurrent use. Concurrent updates for the
// same owner can race at the directory level (last write wins); the
// validation here bounds the damage, it does not serialize writers.
type Manager struct {
	dir    directory.Client
	alerts alert.Reporter
	log    *slog.Logger
	now    func() time.Time
}

// ManagerOption configures optional manager collaborators.
type ManagerOption func(*Manager)

// WithAlertReporter routes fan-out failure alerts to r.
func WithAlertReporter(r alert.Reporter) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.alerts = r
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock injects the time source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a seat manager writing through dir. Panics on a nil
// directory client to fail fast during initialization.
func NewManager(dir directory.Client, opts ...ManagerOption) *Manager {
	if dir == nil {
		panic("team: directory client is required")
	}

	m := &Manager{
		dir:    dir,
		alerts: alert.Discard{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdateTeam removes and adds members on ownerID's team in one operation.
//
// All validation runs before any mutation, so a rejected request leaves the
// directory untouched. Execution is not transactional: member writes fan out
// best-effort, failures are collected rather than aborting the batch, and
// the owner record is recomputed from the writes that succeeded. Any
// collected failures surface as ErrPartialUpdate after all writes were
// attempted.
func (m *Manager) UpdateTeam(ctx context.Context, ownerID string, upd Update) error {
	now := m.now()

	owner, err := m.dir.GetUser(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner.Metadata.Variant() != license.VariantTeamOwner || !owner.Metadata.ActiveAt(now) {
		return ErrNotTeamOwner
	}

	removals, additions, err := m.validate(ctx, owner, upd, now)
	if err != nil {
		return err
	}

	var failures []error

	removedIDs, errs := m.removeMembers(ctx, removals)
	failures = append(failures, errs...)

	addedIDs, errs := m.addMembers(ctx, owner.ID, additions, now)
	failures = append(failures, errs...)

	// The owner record is recomputed from the writes that actually landed:
	// untouched members keep their relative order, new members append, and
	// every successfully freed recent seat gets a lock.
	memberIDs := make([]string, 0, len(owner.Metadata.TeamMemberIDs)+len(addedIDs))
	for _, id := range owner.Metadata.TeamMemberIDs {
		if !slices.Contains(removedIDs, id) {
			memberIDs = append(memberIDs, id)
		}
	}
	memberIDs = append(memberIDs, addedIDs...)

	locks := owner.Metadata.LockedLicenses.Pruned(now)
	for _, removed := range removals {
		if !slices.Contains(removedIDs, removed.user.ID) {
			continue
		}
		if removed.recentlyJoined {
			locks = append(locks, now)
		}
	}

	patch := directory.Patch{}.Set(directory.KeyTeamMemberIDs, memberIDs)
	if len(locks) == 0 {
		patch.Delete(directory.KeyLockedLicenses)
	} else {
		patch.Set(directory.KeyLockedLicenses, locks)
	}
	if err := m.dir.UpdateMetadata(ctx, owner.ID, patch); err != nil {
		failures = append(failures, fmt.Errorf("owner %s: %w", owner.ID, err))
	}

	if len(failures) > 0 {
		m.alerts.Report(ctx, alert.Alert{
			Kind:    alert.KindFanoutFailure,
			Message: "team update completed with per-member failures",
			UserID:  owner.ID,
			Email:   owner.Email,
			Fields:  map[string]any{"failures": len(failures)},
		})
		return errors.Join(append([]error{ErrPartialUpdate}, failures...)...)
	}
	return nil
}

// removal is a validated member removal: the member's current record plus
// whether freeing their seat must create a license lock.
type removal struct {
	user           directory.User
	recentlyJoined bool
}

// addition is a validated member addition: the normalized email plus the
// existing account, if any.
type addition struct {
	email    string
	existing *directory.User
}

// validate performs every check before the first mutation.
func (m *Manager) validate(ctx context.Context, owner directory.User, upd Update, now time.Time) ([]removal, []addition, error) {
	if hasDuplicates(upd.IDsToRemove) {
		return nil, nil, errors.Join(ErrDuplicateEntries, errors.New("ids_to_remove contains duplicates"))
	}

	emails := make([]string, 0, len(upd.EmailsToAdd))
	for _, e := range upd.EmailsToAdd {
		emails = append(emails, strings.ToLower(strings.TrimSpace(e)))
	}
	if hasDuplicates(emails) {
		return nil, nil, errors.Join(ErrDuplicateEntries, errors.New("emails_to_add contains duplicates"))
	}

	// Both sides must agree a member is on the team: the owner's list and
	// the member's own record. A mismatch means a previous update was torn
	// and needs an operator, not more writes.
	members, err := m.dir.SearchMembersByOwner(ctx, owner.ID)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]directory.User, len(members))
	for _, mem := range members {
		byID[mem.ID] = mem
	}

	removals := make([]removal, 0, len(upd.IDsToRemove))
	for _, id := range upd.IDsToRemove {
		// The owner giving up their own seat never carried an owner
		// reference, so the reverse search cannot find them.
		if id == owner.ID && owner.Metadata.HasMember(id) {
			removals = append(removals, removal{user: owner})
			continue
		}
		mem, ok := byID[id]
		if !ok || !owner.Metadata.HasMember(id) {
			return nil, nil, errors.Join(ErrInconsistentMembership,
				fmt.Errorf("user %s is not a consistent member of team %s", id, owner.ID))
		}
		recent := mem.Metadata.JoinedTeamAt != nil && now.Sub(*mem.Metadata.JoinedTeamAt) < license.LockDuration
		removals = append(removals, removal{user: mem, recentlyJoined: recent})
	}

	// Seat math. Locks created by this very request count against capacity:
	// a freshly freed recent seat cannot be handed to a newcomer in the
	// same breath.
	newLocks := 0
	for _, r := range removals {
		if r.recentlyJoined {
			newLocks++
		}
	}
	activeLocks := owner.Metadata.LockedLicenses.ActiveCount(now) + newLocks
	newSize := len(owner.Metadata.TeamMemberIDs) - len(removals) + len(emails)

	if newSize > owner.Metadata.Quantity {
		return nil, nil, errors.Join(ErrSeatLimitExceeded,
			fmt.Errorf("team of %d exceeds %d seats", newSize, owner.Metadata.Quantity))
	}
	if newSize > owner.Metadata.Quantity-activeLocks {
		return nil, nil, errors.Join(ErrSeatLocked,
			fmt.Errorf("%d of %d seats locked for reassignment", activeLocks, owner.Metadata.Quantity))
	}

	additions := make([]addition, 0, len(emails))
	for _, email := range emails {
		candidates, err := m.dir.GetUsersByEmail(ctx, email)
		if err != nil {
			return nil, nil, err
		}
		if len(candidates) == 0 {
			additions = append(additions, addition{email: email})
			continue
		}

		candidate := candidates[0]
		md := candidate.Metadata
		switch {
		// The owner's own seat is tracked by the member list alone, so the
		// owner-reference check below never matches it. Checking the list
		// also catches records drifted out of sync with the list.
		case owner.Metadata.HasMember(candidate.ID):
			return nil, nil, errors.Join(ErrAlreadyMember, fmt.Errorf("user %s", candidate.ID))
		case md.OwnerID == owner.ID:
			return nil, nil, errors.Join(ErrAlreadyMember, fmt.Errorf("user %s", candidate.ID))
		case md.OwnerID != "":
			return nil, nil, errors.Join(ErrOnAnotherTeam, fmt.Errorf("user %s", candidate.ID))
		case md.Variant() == license.VariantIndividual && md.ActiveAt(now) && candidate.ID != owner.ID:
			// The owner occupying one of their own seats is fine; anyone
			// else must not be double-billed.
			return nil, nil, errors.Join(ErrHasSubscription, fmt.Errorf("user %s", candidate.ID))
		}
		additions = append(additions, addition{email: email, existing: &candidate})
	}

	return removals, additions, nil
}

// removeMembers clears the team fields on every removed member, attempting
// all writes regardless of individual failures. Returns the ids that were
// actually cleared and the collected failures.
func (m *Manager) removeMembers(ctx context.Context, removals []removal) ([]string, []error) {
	futures := make([]*async.Future[string], len(removals))
	for i, r := range removals {
		user := r.user
		futures[i] = async.Go(ctx, func(ctx context.Context) (string, error) {
			patch := directory.Patch{}.
				Delete(directory.KeyOwnerID).
				Delete(directory.KeyJoinedTeamAt)
			if err := m.dir.UpdateMetadata(ctx, user.ID, patch); err != nil {
				return "", fmt.Errorf("remove member %s: %w", user.ID, err)
			}
			return user.ID, nil
		})
	}

	var ids []string
	var errs []error
	for _, res := range async.Join(futures...) {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		ids = append(ids, res.Value)
	}
	return ids, errs
}

// addMembers assigns a seat to every candidate, provisioning directory
// accounts for emails with none. Same best-effort policy as removals.
func (m *Manager) addMembers(ctx context.Context, ownerID string, additions []addition, now time.Time) ([]string, []error) {
	futures := make([]*async.Future[string], len(additions))
	for i, a := range additions {
		add := a
		futures[i] = async.Go(ctx, func(ctx context.Context) (string, error) {
			user := add.existing
			if user == nil {
				created, err := m.dir.CreateUser(ctx, add.email)
				if err != nil {
					return "", fmt.Errorf("create member %s: %w", add.email, err)
				}
				user = &created
			}

			// The owner occupying their own seat is tracked by the member
			// list alone; writing an owner reference onto their record would
			// turn the owner into a member of themselves.
			if user.ID == ownerID {
				return user.ID, nil
			}

			patch := directory.Patch{}.
				Set(directory.KeyOwnerID, ownerID).
				Set(directory.KeyJoinedTeamAt, now.UTC())
			if err := m.dir.UpdateMetadata(ctx, user.ID, patch); err != nil {
				return "", fmt.Errorf("add member %s: %w", user.ID, err)
			}
			return user.ID, nil
		})
	}

	var ids []string
	var errs []error
	for _, res := range async.Join(futures...) {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		ids = append(ids, res.Value)
	}
	return ids, errs
}

func hasDuplicates(values []string) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
