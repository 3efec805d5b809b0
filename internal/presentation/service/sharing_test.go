package service

import (
	"context"
	"testing"

	"collabdeck/internal/activity"
	"collabdeck/internal/presentation/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestInviteCollaborator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePresentation(ctx, "alice", model.CreatePresentationRequest{Title: "Pitch"})
	require.NoError(t, err)

	change, err := f.svc.InviteCollaborator(ctx, "alice", p.ID, "Bob@X.com", model.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, "bob", change.UserID)
	assert.Equal(t, model.RoleEditor, f.load(t, p.ID).Access["bob"])

	entries := f.activity(t, p.ID)
	require.Equal(t, 1, countActions(entries, activity.CollaboratorAdded))
	for _, e := range entries {
		if e.ActionType == activity.CollaboratorAdded {
			require.NotNil(t, e.TargetID)
			assert.Equal(t, "bob", *e.TargetID)
			assert.Equal(t, "alice", e.ActorID)
		}
	}
	require.Len(t, f.hub.notes["bob"], 1)
	assert.Equal(t, p.ID, f.hub.notes["bob"][0].PresentationID)

	// bob is an editor, not an owner.
	_, err = f.svc.InviteCollaborator(ctx, "bob", p.ID, "carol@x.com", model.RoleEditor)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NotContains(t, f.load(t, p.ID).Access, "carol")
}

func TestInviteCollaborator_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.InviteCollaborator(ctx, "alice", d.ID, "alice@x.com", model.RoleEditor)
	assert.ErrorIs(t, err, ErrValidation, "the creator cannot be invited")

	_, err = f.svc.InviteCollaborator(ctx, "alice", d.ID, "carol@x.com", model.RoleOwner)
	assert.ErrorIs(t, err, ErrValidation, "owner is never granted by invite")

	_, err = f.svc.InviteCollaborator(ctx, "alice", d.ID, "nobody@x.com", model.RoleViewer)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.InviteCollaborator(ctx, "alice", "missing", "carol@x.com", model.RoleViewer)
	assert.ErrorIs(t, err, ErrNotFound)

	// Re-inviting at a new role upgrades.
	_, err = f.svc.InviteCollaborator(ctx, "alice", d.ID, "carol@x.com", model.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEditor, f.load(t, d.ID).Access["carol"])
}

func TestUpdateCollaborators_ProtectsCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	changes, err := f.svc.UpdateCollaborators(ctx, "alice", d.ID, map[string]*model.Role{
		"alice": nil,
		"bob":   ptr(model.RoleViewer),
		"carol": nil,
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, model.CollaboratorChange{UserID: "bob", OldRole: model.RoleEditor, NewRole: model.RoleViewer}, changes[0])
	assert.Equal(t, model.CollaboratorChange{UserID: "carol", OldRole: model.RoleViewer, Removed: true}, changes[1])

	_, err = f.svc.UpdateCollaborators(ctx, "alice", d.ID, map[string]*model.Role{"alice": ptr(model.RoleViewer)})
	require.NoError(t, err)

	p := f.load(t, d.ID)
	assert.Equal(t, model.RoleOwner, p.Access["alice"])
	assert.Equal(t, model.RoleOwner, p.RoleOf("alice"))
	assert.Equal(t, model.RoleViewer, p.Access["bob"])
	assert.NotContains(t, p.Access, "carol")

	entries := f.activity(t, d.ID)
	assert.Equal(t, 1, countActions(entries, activity.CollaboratorRoleChanged))
	assert.Equal(t, 1, countActions(entries, activity.CollaboratorRemoved))
}

func TestUpdateCollaborators_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.UpdateCollaborators(ctx, "bob", d.ID, map[string]*model.Role{"carol": nil})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.UpdateCollaborators(ctx, "alice", d.ID, map[string]*model.Role{"carol": ptr(model.RoleOwner)})
	assert.ErrorIs(t, err, ErrValidation)

	changes, err := f.svc.UpdateCollaborators(ctx, "alice", d.ID, map[string]*model.Role{"bob": ptr(model.RoleEditor)})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestUpdateSettings_PublicPasswordLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	st, err := f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{
		IsPublic:          ptr(true),
		PasswordProtected: ptr(true),
		Password:          ptr("secret123"),
	})
	require.NoError(t, err)
	assert.True(t, st.IsPublic)
	assert.True(t, st.PasswordProtected)
	assert.Empty(t, st.PasswordHash, "the hash never leaves the service")

	stored := f.load(t, d.ID).Settings
	assert.NotEmpty(t, stored.PasswordHash)
	assert.NotEqual(t, "secret123", stored.PasswordHash)

	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(false)})
	require.NoError(t, err)

	stored = f.load(t, d.ID).Settings
	assert.False(t, stored.IsPublic)
	assert.False(t, stored.PasswordProtected)
	assert.Empty(t, stored.PasswordHash)

	assert.Equal(t, 2, countActions(f.activity(t, d.ID), activity.SettingsChanged))
}

func TestUpdateSettings_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.UpdateSettings(ctx, "bob", d.ID, model.SettingsUpdate{IsPublic: ptr(true)})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(true), PasswordProtected: ptr(true)})
	assert.ErrorIs(t, err, ErrValidation, "protection needs a password when none is stored")

	st, err := f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{PasswordProtected: ptr(true), Password: ptr("pw")})
	require.NoError(t, err)
	assert.False(t, st.PasswordProtected, "private decks are never protected")
	assert.Empty(t, f.load(t, d.ID).Settings.PasswordHash)

	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(true), Password: ptr("pw")})
	assert.ErrorIs(t, err, ErrValidation, "a password alone does not enable protection")

	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(true), PasswordProtected: ptr(true), Password: ptr("pw")})
	require.NoError(t, err)

	// Turning protection off drops the stored password.
	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{PasswordProtected: ptr(false)})
	require.NoError(t, err)
	assert.Empty(t, f.load(t, d.ID).Settings.PasswordHash)
	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{PasswordProtected: ptr(true)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateSettings_PrivateClearsProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	_, err := f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(true), PasswordProtected: ptr(true), Password: ptr("pw")})
	require.NoError(t, err)

	st, err := f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(false), PasswordProtected: ptr(true)})
	require.NoError(t, err)
	assert.False(t, st.IsPublic)
	assert.False(t, st.PasswordProtected)

	stored := f.load(t, d.ID).Settings
	assert.False(t, stored.PasswordProtected)
	assert.Empty(t, stored.PasswordHash)
}

func TestVerifyAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	ok, err := f.svc.VerifyAccess(ctx, d.ID, "dave", "")
	require.NoError(t, err)
	assert.False(t, ok, "private deck")

	_, err = f.svc.UpdateSettings(ctx, "alice", d.ID, model.SettingsUpdate{IsPublic: ptr(true), PasswordProtected: ptr(true), Password: ptr("secret123")})
	require.NoError(t, err)

	ok, err = f.svc.VerifyAccess(ctx, d.ID, "dave", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.VerifyAccess(ctx, d.ID, "dave", "secret123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifyAccess(ctx, d.ID, "carol", "")
	require.NoError(t, err)
	assert.True(t, ok, "members do not need the password")

	_, err = f.svc.VerifyAccess(ctx, "missing", "dave", "secret123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t)

	assert.ErrorIs(t, f.svc.TransferOwnership(ctx, "bob", d.ID, "bob"), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.TransferOwnership(ctx, "alice", d.ID, "dave"), ErrValidation)

	require.NoError(t, f.svc.TransferOwnership(ctx, "alice", d.ID, "bob"))

	p := f.load(t, d.ID)
	assert.Equal(t, "bob", p.CreatorID)
	assert.Equal(t, model.RoleOwner, p.RoleOf("bob"))
	assert.Equal(t, model.RoleOwner, p.RoleOf("alice"))
	assert.Equal(t, 1, countActions(f.activity(t, d.ID), activity.OwnershipTransferred))
	assert.Len(t, f.hub.notes["bob"], 1)

	// The new creator is now the protected entry.
	_, err := f.svc.UpdateCollaborators(ctx, "alice", d.ID, map[string]*model.Role{"bob": nil})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, f.load(t, d.ID).RoleOf("bob"))
}
