package team_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/license"
	"github.com/dmitrymomot/subsync/pkg/team"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, dir directory.Client) *team.Manager {
	t.Helper()
	return team.NewManager(dir, team.WithClock(func() time.Time { return testNow }))
}

// seedOwner provisions a team owner with an active subscription, quantity
// seats and the given members already on the list.
func seedOwner(t *testing.T, dir *directory.MemoryClient, email string, quantity int, memberIDs []string) directory.User {
	t.Helper()
	ctx := context.Background()

	owner, err := dir.CreateUser(ctx, email)
	require.NoError(t, err)

	if memberIDs == nil {
		memberIDs = []string{}
	}
	expiry := testNow.Add(300 * 24 * time.Hour)
	require.NoError(t, dir.UpdateMetadata(ctx, owner.ID, directory.Patch{}.
		Set(directory.KeySubscriptionStatus, license.StatusActive).
		Set(directory.KeySubscriptionID, "sub_team_"+owner.ID).
		Set(directory.KeySubscriptionSKU, license.SKUTeamMonthly).
		Set(directory.KeySubscriptionExpiry, expiry).
		Set(directory.KeySubscriptionQuantity, quantity).
		Set(directory.KeyPaymentProvider, license.ProviderPaddle).
		Set(directory.KeyTeamMemberIDs, memberIDs)))

	owner, err = dir.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	return owner
}

// seedMember provisions a user already occupying a seat on ownerID's team.
func seedMember(t *testing.T, dir *directory.MemoryClient, email, ownerID string, joinedAt time.Time) directory.User {
	t.Helper()
	ctx := context.Background()

	member, err := dir.CreateUser(ctx, email)
	require.NoError(t, err)
	require.NoError(t, dir.UpdateMetadata(ctx, member.ID, directory.Patch{}.
		Set(directory.KeyOwnerID, ownerID).
		Set(directory.KeyJoinedTeamAt, joinedAt)))

	member, err = dir.GetUser(ctx, member.ID)
	require.NoError(t, err)
	return member
}

func TestUpdateTeam_AddMembers(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	owner := seedOwner(t, dir, "owner@example.com", 3, nil)

	existing, err := dir.CreateUser(ctx, "existing@example.com")
	require.NoError(t, err)

	err = mgr.UpdateTeam(ctx, owner.ID, team.Update{
		EmailsToAdd: []string{"existing@example.com", "fresh@example.com"},
	})
	require.NoError(t, err)

	got, err := dir.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, got.Metadata.TeamMemberIDs, 2)
	assert.Contains(t, got.Metadata.TeamMemberIDs, existing.ID)

	// The existing account got a seat.
	gotExisting, err := dir.GetUser(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, gotExisting.Metadata.OwnerID)
	require.NotNil(t, gotExisting.Metadata.JoinedTeamAt)

	// The unknown email got a provisioned account with a seat.
	fresh, err := dir.GetUsersByEmail(ctx, "fresh@example.com")
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, owner.ID, fresh[0].Metadata.OwnerID)
	assert.Contains(t, got.Metadata.TeamMemberIDs, fresh[0].ID)
}

func TestUpdateTeam_EmailNormalization(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	owner := seedOwner(t, dir, "owner@example.com", 2, nil)

	existing, err := dir.CreateUser(ctx, "mixed@example.com")
	require.NoError(t, err)

	err = mgr.UpdateTeam(ctx, owner.ID, team.Update{
		EmailsToAdd: []string{"  Mixed@Example.COM "},
	})
	require.NoError(t, err)

	got, err := dir.GetUser(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.Metadata.OwnerID)
}

func TestUpdateTeam_RemoveMembers(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	// Joined long ago: removal frees the seat without a lock.
	ownerStub := seedOwner(t, dir, "owner@example.com", 3, nil)
	veteran := seedMember(t, dir, "veteran@example.com", ownerStub.ID, testNow.Add(-30*24*time.Hour))
	require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
		Set(directory.KeyTeamMemberIDs, []string{veteran.ID})))

	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{IDsToRemove: []string{veteran.ID}})
	require.NoError(t, err)

	got, err := dir.GetUser(ctx, ownerStub.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Metadata.TeamMemberIDs)
	assert.Empty(t, got.Metadata.LockedLicenses)

	gotVeteran, err := dir.GetUser(ctx, veteran.ID)
	require.NoError(t, err)
	assert.Equal(t, license.VariantNone, gotVeteran.Metadata.Variant())
}

func TestUpdateTeam_RemovingRecentMemberLocksTheSeat(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 3, nil)
	recent := seedMember(t, dir, "recent@example.com", ownerStub.ID, testNow.Add(-2*time.Hour))
	require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
		Set(directory.KeyTeamMemberIDs, []string{recent.ID})))

	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{IDsToRemove: []string{recent.ID}})
	require.NoError(t, err)

	got, err := dir.GetUser(ctx, ownerStub.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Metadata.TeamMemberIDs)
	require.Len(t, got.Metadata.LockedLicenses, 1)
	assert.Equal(t, 1, got.Metadata.LockedLicenses.ActiveCount(testNow))
}

func TestUpdateTeam_SeatLimitExceeded(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 1, nil)
	member := seedMember(t, dir, "only@example.com", ownerStub.ID, testNow.Add(-30*24*time.Hour))
	require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
		Set(directory.KeyTeamMemberIDs, []string{member.ID})))

	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
		EmailsToAdd: []string{"second@example.com"},
	})
	assert.ErrorIs(t, err, team.ErrSeatLimitExceeded)

	// Nothing was written.
	got, err := dir.GetUser(ctx, ownerStub.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{member.ID}, got.Metadata.TeamMemberIDs)
}

func TestUpdateTeam_SeatLockedAfterRecentRemoval(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 1, nil)
	recent := seedMember(t, dir, "recent@example.com", ownerStub.ID, testNow.Add(-time.Hour))
	require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
		Set(directory.KeyTeamMemberIDs, []string{recent.ID})))

	// Swapping a recently joined member for a newcomer in one request fits
	// the quantity but not the capacity: the freed seat is lock-protected.
	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
		IDsToRemove: []string{recent.ID},
		EmailsToAdd: []string{"new@example.com"},
	})
	assert.ErrorIs(t, err, team.ErrSeatLocked)

	t.Run("stored locks block too", func(t *testing.T) {
		require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
			Set(directory.KeyTeamMemberIDs, []string{}).
			Set(directory.KeyLockedLicenses, license.Locks{testNow.Add(-time.Hour)})))

		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"new@example.com"},
		})
		assert.ErrorIs(t, err, team.ErrSeatLocked)
	})

	t.Run("expired lock frees the seat", func(t *testing.T) {
		require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
			Set(directory.KeyTeamMemberIDs, []string{}).
			Set(directory.KeyLockedLicenses, license.Locks{testNow.Add(-license.LockDuration)})))

		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"new@example.com"},
		})
		require.NoError(t, err)

		// The dead lock was pruned from the record on the way out.
		got, err := dir.GetUser(ctx, ownerStub.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Metadata.LockedLicenses)
		assert.Len(t, got.Metadata.TeamMemberIDs, 1)
	})
}

func TestUpdateTeam_OwnershipChecks(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	t.Run("unknown user", func(t *testing.T) {
		err := mgr.UpdateTeam(ctx, "dir|missing", team.Update{EmailsToAdd: []string{"a@b.com"}})
		assert.ErrorIs(t, err, directory.ErrUserNotFound)
	})

	t.Run("user without a team subscription", func(t *testing.T) {
		user, err := dir.CreateUser(ctx, "plain@example.com")
		require.NoError(t, err)

		err = mgr.UpdateTeam(ctx, user.ID, team.Update{EmailsToAdd: []string{"a@b.com"}})
		assert.ErrorIs(t, err, team.ErrNotTeamOwner)
	})

	t.Run("owner whose subscription expired", func(t *testing.T) {
		owner := seedOwner(t, dir, "expired@example.com", 3, nil)
		require.NoError(t, dir.UpdateMetadata(ctx, owner.ID, directory.Patch{}.
			Set(directory.KeySubscriptionExpiry, testNow.Add(-time.Hour))))

		err := mgr.UpdateTeam(ctx, owner.ID, team.Update{EmailsToAdd: []string{"a@b.com"}})
		assert.ErrorIs(t, err, team.ErrNotTeamOwner)
	})
}

func TestUpdateTeam_ValidationRejections(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 5, nil)
	member := seedMember(t, dir, "member@example.com", ownerStub.ID, testNow.Add(-30*24*time.Hour))
	require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
		Set(directory.KeyTeamMemberIDs, []string{member.ID})))

	t.Run("duplicate removal ids", func(t *testing.T) {
		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			IDsToRemove: []string{member.ID, member.ID},
		})
		assert.ErrorIs(t, err, team.ErrDuplicateEntries)
	})

	t.Run("duplicate emails after normalization", func(t *testing.T) {
		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"new@example.com", "NEW@example.com"},
		})
		assert.ErrorIs(t, err, team.ErrDuplicateEntries)
	})

	t.Run("removing someone not on the team", func(t *testing.T) {
		stranger, err := dir.CreateUser(ctx, "stranger@example.com")
		require.NoError(t, err)

		err = mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			IDsToRemove: []string{stranger.ID},
		})
		assert.ErrorIs(t, err, team.ErrInconsistentMembership)
	})

	t.Run("one-sided membership is inconsistent", func(t *testing.T) {
		// On the owner's list but the member's own record lost the owner
		// reference: a torn previous update.
		torn, err := dir.CreateUser(ctx, "torn@example.com")
		require.NoError(t, err)
		require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
			Set(directory.KeyTeamMemberIDs, []string{member.ID, torn.ID})))

		err = mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			IDsToRemove: []string{torn.ID},
		})
		assert.ErrorIs(t, err, team.ErrInconsistentMembership)

		require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
			Set(directory.KeyTeamMemberIDs, []string{member.ID})))
	})

	t.Run("adding an existing member", func(t *testing.T) {
		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"member@example.com"},
		})
		assert.ErrorIs(t, err, team.ErrAlreadyMember)
	})

	t.Run("adding a member of another team", func(t *testing.T) {
		otherOwner := seedOwner(t, dir, "other-owner@example.com", 2, nil)
		poached := seedMember(t, dir, "poached@example.com", otherOwner.ID, testNow.Add(-time.Hour))
		require.NoError(t, dir.UpdateMetadata(ctx, otherOwner.ID, directory.Patch{}.
			Set(directory.KeyTeamMemberIDs, []string{poached.ID})))

		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"poached@example.com"},
		})
		assert.ErrorIs(t, err, team.ErrOnAnotherTeam)
	})

	t.Run("adding a user with an active subscription", func(t *testing.T) {
		solo, err := dir.CreateUser(ctx, "solo@example.com")
		require.NoError(t, err)
		require.NoError(t, dir.UpdateMetadata(ctx, solo.ID, directory.Patch{}.
			Set(directory.KeySubscriptionStatus, license.StatusActive).
			Set(directory.KeySubscriptionID, "sub_solo").
			Set(directory.KeySubscriptionSKU, license.SKUIndividualMonthly).
			Set(directory.KeySubscriptionExpiry, testNow.Add(30*24*time.Hour))))

		err = mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"solo@example.com"},
		})
		assert.ErrorIs(t, err, team.ErrHasSubscription)
	})

	t.Run("user with an expired subscription may join", func(t *testing.T) {
		lapsed, err := dir.CreateUser(ctx, "lapsed@example.com")
		require.NoError(t, err)
		require.NoError(t, dir.UpdateMetadata(ctx, lapsed.ID, directory.Patch{}.
			Set(directory.KeySubscriptionStatus, license.StatusDeleted).
			Set(directory.KeySubscriptionID, "sub_lapsed").
			Set(directory.KeySubscriptionSKU, license.SKUIndividualMonthly).
			Set(directory.KeySubscriptionExpiry, testNow.Add(-48*time.Hour))))

		err = mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			EmailsToAdd: []string{"lapsed@example.com"},
		})
		require.NoError(t, err)

		got, err := dir.GetUser(ctx, lapsed.ID)
		require.NoError(t, err)
		assert.Equal(t, ownerStub.ID, got.Metadata.OwnerID)
	})
}

func TestUpdateTeam_OwnerTakesOwnSeat(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 2, nil)

	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
		EmailsToAdd: []string{"owner@example.com"},
	})
	require.NoError(t, err)

	got, err := dir.GetUser(ctx, ownerStub.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Metadata.TeamMemberIDs, ownerStub.ID)

	// The owner's record keeps its owner shape: no self owner reference.
	assert.Equal(t, license.VariantTeamOwner, got.Metadata.Variant())

	t.Run("and can give the seat back", func(t *testing.T) {
		err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
			IDsToRemove: []string{ownerStub.ID},
		})
		require.NoError(t, err)

		got, err := dir.GetUser(ctx, ownerStub.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Metadata.TeamMemberIDs, ownerStub.ID)
		assert.Equal(t, license.VariantTeamOwner, got.Metadata.Variant())
	})
}

func TestUpdateTeam_OwnerCannotTakeOwnSeatTwice(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 3, nil)

	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
		EmailsToAdd: []string{"owner@example.com"},
	})
	require.NoError(t, err)

	// The owner has no self owner reference, so only the member list can
	// reveal the seat is already taken.
	err = mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
		EmailsToAdd: []string{"owner@example.com"},
	})
	require.ErrorIs(t, err, team.ErrAlreadyMember)

	got, err := dir.GetUser(ctx, ownerStub.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ownerStub.ID}, got.Metadata.TeamMemberIDs)
}

func TestUpdateTeam_SwapKeepsMemberOrder(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	mgr := newTestManager(t, dir)

	ownerStub := seedOwner(t, dir, "owner@example.com", 3, nil)
	first := seedMember(t, dir, "first@example.com", ownerStub.ID, testNow.Add(-90*24*time.Hour))
	second := seedMember(t, dir, "second@example.com", ownerStub.ID, testNow.Add(-60*24*time.Hour))
	require.NoError(t, dir.UpdateMetadata(ctx, ownerStub.ID, directory.Patch{}.
		Set(directory.KeyTeamMemberIDs, []string{first.ID, second.ID})))

	err := mgr.UpdateTeam(ctx, ownerStub.ID, team.Update{
		IDsToRemove: []string{first.ID},
		EmailsToAdd: []string{"third@example.com"},
	})
	require.NoError(t, err)

	third, err := dir.GetUsersByEmail(ctx, "third@example.com")
	require.NoError(t, err)
	require.Len(t, third, 1)

	// Survivors keep their position; newcomers append.
	got, err := dir.GetUser(ctx, ownerStub.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, third[0].ID}, got.Metadata.TeamMemberIDs)
}
