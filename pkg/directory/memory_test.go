package directory_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/license"
)

func TestPatch_DeletedMarshalsToNull(t *testing.T) {
	patch := directory.Patch{}.
		Set(directory.KeySubscriptionStatus, "active").
		Delete(directory.KeySubscriptionQuantity)

	raw, err := json.Marshal(patch)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "active", doc[directory.KeySubscriptionStatus])
	assert.Contains(t, doc, directory.KeySubscriptionQuantity)
	assert.Nil(t, doc[directory.KeySubscriptionQuantity])
}

func TestMemoryClient_CreateGet(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()

	user, err := dir.CreateUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)

	got, err := dir.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, license.VariantNone, got.Metadata.Variant())

	_, err = dir.GetUser(ctx, "dir|missing")
	assert.ErrorIs(t, err, directory.ErrUserNotFound)

	_, err = dir.CreateUser(ctx, "not-an-email")
	assert.ErrorIs(t, err, directory.ErrInvalidEmail)
}

func TestMemoryClient_GetUsersByEmail(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()

	_, err := dir.CreateUser(ctx, "bob@example.com")
	require.NoError(t, err)
	_, err = dir.CreateUser(ctx, "Bob@Example.com")
	require.NoError(t, err)

	users, err := dir.GetUsersByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = dir.GetUsersByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestMemoryClient_UpdateMetadata(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()

	user, err := dir.CreateUser(ctx, "carol@example.com")
	require.NoError(t, err)

	expiry := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	patch := directory.Patch{}.
		Set(directory.KeySubscriptionStatus, license.StatusActive).
		Set(directory.KeySubscriptionID, "sub_1").
		Set(directory.KeySubscriptionSKU, license.SKUIndividualMonthly).
		Set(directory.KeySubscriptionExpiry, expiry).
		Set(directory.KeyPaymentProvider, license.ProviderPaddle)
	require.NoError(t, dir.UpdateMetadata(ctx, user.ID, patch))

	got, err := dir.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, license.VariantIndividual, got.Metadata.Variant())
	assert.Equal(t, license.StatusActive, got.Metadata.Status)
	require.NotNil(t, got.Metadata.ExpiresAt)
	assert.True(t, got.Metadata.ExpiresAt.Equal(expiry))

	t.Run("deleted keys are removed, untouched keys survive", func(t *testing.T) {
		err := dir.UpdateMetadata(ctx, user.ID, directory.Patch{}.
			Delete(directory.KeySubscriptionExpiry))
		require.NoError(t, err)

		got, err := dir.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Metadata.ExpiresAt)
		assert.Equal(t, "sub_1", got.Metadata.SubscriptionID)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := dir.UpdateMetadata(ctx, "dir|missing", directory.Patch{}.Set(directory.KeyBanned, true))
		assert.ErrorIs(t, err, directory.ErrUserNotFound)
	})
}

func TestMemoryClient_SearchMembersByOwner(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()

	owner, err := dir.CreateUser(ctx, "owner@example.com")
	require.NoError(t, err)

	member, err := dir.CreateUser(ctx, "member@example.com")
	require.NoError(t, err)
	require.NoError(t, dir.UpdateMetadata(ctx, member.ID, directory.Patch{}.
		Set(directory.KeyOwnerID, owner.ID).
		Set(directory.KeyJoinedTeamAt, time.Now().UTC())))

	_, err = dir.CreateUser(ctx, "loner@example.com")
	require.NoError(t, err)

	members, err := dir.SearchMembersByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, member.ID, members[0].ID)
	assert.Equal(t, owner.ID, members[0].Metadata.OwnerID)
}

func TestMemoryClient_ResolveToken(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()

	dir.RegisterToken("tok_valid", "dir|user1")

	id, err := dir.ResolveToken(ctx, "tok_valid")
	require.NoError(t, err)
	assert.Equal(t, "dir|user1", id)

	_, err = dir.ResolveToken(ctx, "tok_forged")
	assert.ErrorIs(t, err, directory.ErrUnauthorized)
}
