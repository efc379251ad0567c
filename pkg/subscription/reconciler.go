package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/subsync/pkg/alert"
	"github.com/dmitrymomot/subsync/pkg/cache"
	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/license"
)

// doubleCheckoutLeeway is how much life the existing subscription must have
// left before a conflicting event is worth an operator alert. Below this the
// old subscription is about to lapse anyway and the new one silently wins.
const doubleCheckoutLeeway = 5 * 24 * time.Hour

// Reconciler applies canonical events to the user's directory record. It is
// stateless and safe for concurrent use; idempotence and the stale-event
// rules bound the damage from duplicated or reordered webhook delivery.
type Reconciler struct {
	dir    directory.Client
	alerts alert.Reporter
	log    *slog.Logger
	now    func() time.Time

	// users maps provider customer IDs to directory user IDs. Purely a
	// lookup shortcut: metadata is always fetched fresh from the directory,
	// and a stale or dropped entry only costs an extra email lookup.
	users *cache.TTL[string, string]
}

// ReconcilerOption configures optional reconciler collaborators.
type ReconcilerOption func(*Reconciler)

// WithAlertReporter routes non-fatal business alerts (double checkout) to r.
func WithAlertReporter(r alert.Reporter) ReconcilerOption {
	return func(rec *Reconciler) {
		if r != nil {
			rec.alerts = r
		}
	}
}

// WithLogger sets the reconciler's logger.
func WithLogger(log *slog.Logger) ReconcilerOption {
	return func(rec *Reconciler) {
		if log != nil {
			rec.log = log
		}
	}
}

// WithUserCache caches provider-customer-id→directory-user-id resolutions.
// Optional and safe to drop at any time; never authoritative.
func WithUserCache(c *cache.TTL[string, string]) ReconcilerOption {
	return func(rec *Reconciler) {
		rec.users = c
	}
}

// WithClock injects the time source. Intended for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(rec *Reconciler) {
		if now != nil {
			rec.now = now
		}
	}
}

// NewReconciler creates a reconciler writing through dir. Panics on a nil
// directory client to fail fast during initialization.
func NewReconciler(dir directory.Client, opts ...ReconcilerOption) *Reconciler {
	if dir == nil {
		panic("subscription: directory client is required")
	}

	r := &Reconciler{
		dir:    dir,
		alerts: alert.Discard{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies event to the record of the user identified by the
// event's email, provisioning the user on first contact. Duplicate delivery
// of the same event is harmless; stale events for superseded subscriptions
// are discarded silently. Directory failures propagate.
func (r *Reconciler) Reconcile(ctx context.Context, event Event) error {
	if event.Email == "" {
		return errors.Join(ErrValidation, errors.New("event has no email"))
	}

	user, err := r.findOrCreateUser(ctx, event)
	if err != nil {
		return err
	}

	// Disputes are a side channel: they only ever set the ban flag and
	// never touch subscription fields.
	if event.Kind == KindDisputed {
		return r.dir.UpdateMetadata(ctx, user.ID, directory.Patch{}.Set(directory.KeyBanned, true))
	}

	now := r.now()
	meta := user.Metadata

	if meta.SubscriptionID != "" && meta.SubscriptionID != event.SubscriptionID {
		if discard := r.checkConflict(ctx, user, event, now); discard {
			return nil
		}
	}

	// A team member receiving their own subscription leaves the team first.
	leftTeam := false
	if meta.Variant() == license.VariantTeamMember {
		if err := r.detachFromTeam(ctx, user, now); err != nil {
			return err
		}
		leftTeam = true
	}

	patch := r.mergePatch(meta, event, now, leftTeam)
	return r.dir.UpdateMetadata(ctx, user.ID, patch)
}

// findOrCreateUser resolves the directory user for the event, provisioning a
// fresh identity with empty metadata when none exists. When the directory
// holds several accounts under one email the first one wins; the rest are
// stale identity-provider duplicates.
func (r *Reconciler) findOrCreateUser(ctx context.Context, event Event) (directory.User, error) {
	if r.users != nil && event.ProviderUserID != "" {
		if id, ok := r.users.Get(event.ProviderUserID); ok {
			user, err := r.dir.GetUser(ctx, id)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, directory.ErrUserNotFound) {
				return directory.User{}, err
			}
			r.users.Remove(event.ProviderUserID)
		}
	}

	users, err := r.dir.GetUsersByEmail(ctx, event.Email)
	if err != nil {
		return directory.User{}, err
	}

	var user directory.User
	switch len(users) {
	case 0:
		if user, err = r.dir.CreateUser(ctx, event.Email); err != nil {
			return directory.User{}, err
		}
	case 1:
		user = users[0]
	default:
		r.log.WarnContext(ctx, "multiple directory accounts for email",
			slog.String("email", event.Email),
			slog.Int("count", len(users)),
		)
		user = users[0]
	}

	if r.users != nil && event.ProviderUserID != "" {
		r.users.Set(event.ProviderUserID, user.ID)
	}
	return user, nil
}

// checkConflict handles an event whose subscription ID differs from the one
// on record. Returns true when the event is stale and must be discarded.
// Otherwise the newer subscription's dates are assumed correct (latest
// expiry wins); if the existing subscription is healthy and has real life
// left, the overlap smells like a double checkout and an operator alert is
// raised before the update proceeds.
func (r *Reconciler) checkConflict(ctx context.Context, user directory.User, event Event, now time.Time) bool {
	meta := user.Metadata

	if event.ExpiresAt == nil || (meta.ExpiresAt != nil && event.ExpiresAt.Before(*meta.ExpiresAt)) {
		r.log.InfoContext(ctx, "discarding stale subscription event",
			slog.String("user_id", user.ID),
			slog.String("stored_subscription", meta.SubscriptionID),
			slog.String("event_subscription", event.SubscriptionID),
			slog.String("event_kind", string(event.Kind)),
		)
		return true
	}

	if meta.Status != license.StatusPastDue && meta.RemainingAt(now) > doubleCheckoutLeeway {
		r.alerts.Report(ctx, alert.Alert{
			Kind:    alert.KindDoubleCheckout,
			Message: "user replaced a subscription that still had more than five days left",
			UserID:  user.ID,
			Email:   user.Email,
			Fields: map[string]any{
				"stored_subscription": meta.SubscriptionID,
				"event_subscription":  event.SubscriptionID,
				"stored_expiry":       meta.ExpiresAt,
				"event_expiry":        event.ExpiresAt,
			},
		})
	}
	return false
}

// detachFromTeam removes the user from their current team before an
// individual subscription is applied. While the owner's team subscription is
// still active and unexpired the operation is rejected: valid team access
// plus an independent paid subscription would double-bill the user.
func (r *Reconciler) detachFromTeam(ctx context.Context, user directory.User, now time.Time) error {
	owner, err := r.dir.GetUser(ctx, user.Metadata.OwnerID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			// Owner record gone; nothing to detach from.
			return nil
		}
		return err
	}

	if owner.Metadata.ActiveAt(now) {
		return errors.Join(ErrMemberConflict,
			fmt.Errorf("user %s is on team %s with active access", user.ID, owner.ID))
	}

	ids := slices.DeleteFunc(slices.Clone(owner.Metadata.TeamMemberIDs), func(id string) bool {
		return id == user.ID
	})

	patch := directory.Patch{}.Set(directory.KeyTeamMemberIDs, ids)
	setLocks(patch, owner.Metadata.LockedLicenses.Pruned(now))
	return r.dir.UpdateMetadata(ctx, owner.ID, patch)
}

// mergePatch builds the single metadata write for the event. Keys the event
// does not carry are left untouched; keys that would otherwise hold stale
// data are explicitly removed.
func (r *Reconciler) mergePatch(meta license.Metadata, event Event, now time.Time, leftTeam bool) directory.Patch {
	patch := directory.Patch{}.
		Set(directory.KeySubscriptionStatus, event.Status()).
		Set(directory.KeySubscriptionID, event.SubscriptionID).
		Set(directory.KeyPaymentProvider, event.Provider)

	if event.SKU != "" {
		patch.Set(directory.KeySubscriptionSKU, event.SKU)
	}

	if event.ExpiresAt != nil {
		expiry := event.ExpiresAt.UTC()
		// Renewals arriving out of order must never roll the expiry back;
		// cancellations and failures apply their dates verbatim.
		monotonic := event.Kind == KindCreated || event.Kind == KindRenewed
		if !monotonic || meta.SubscriptionID != event.SubscriptionID ||
			meta.ExpiresAt == nil || expiry.After(*meta.ExpiresAt) {
			patch.Set(directory.KeySubscriptionExpiry, expiry)
		}
	}

	if leftTeam {
		patch.Delete(directory.KeyOwnerID).Delete(directory.KeyJoinedTeamAt)
	}

	// Cancellations and payment failures carry no SKU; the stored plan
	// decides whether this record keeps its team shape.
	sku := event.SKU
	if sku == "" {
		sku = meta.SKU
	}

	if sku.IsTeam() {
		if event.Quantity > 0 {
			patch.Set(directory.KeySubscriptionQuantity, event.Quantity)
		}
		if meta.TeamMemberIDs == nil {
			patch.Set(directory.KeyTeamMemberIDs, []string{})
		}
		setLocks(patch, meta.LockedLicenses.Pruned(now))
	} else {
		patch.Delete(directory.KeySubscriptionQuantity)
	}

	return patch
}

// setLocks writes the pruned lock list, removing the key entirely when no
// active locks remain.
func setLocks(patch directory.Patch, locks license.Locks) {
	if len(locks) == 0 {
		patch.Delete(directory.KeyLockedLicenses)
		return
	}
	patch.Set(directory.KeyLockedLicenses, locks)
}
