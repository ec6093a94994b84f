package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliancetracker/compliancetracker/internal/model"
)

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.accounts.Authenticate(ctx, " alice ", "pw-alice")
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, u.ID)

	_, err = f.accounts.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.accounts.Authenticate(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", f.bob.ID).Update("is_active", false).Error)
	_, err = f.accounts.Authenticate(ctx, "bob", "pw-bob")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateUserConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.CreateUser(context.Background(), "alice", "", "", "x")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.accounts.CreateUser(context.Background(), "  ", "", "", "x")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.accounts.GetUser(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCurrentOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.accounts.AddMember(ctx, f.otherOrg.ID, f.alice.ID, "", false))

	org, err := f.accounts.CurrentOrganization(ctx, f.alice.ID, "")
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, org.ID)

	org, err = f.accounts.CurrentOrganization(ctx, f.alice.ID, "other")
	require.NoError(t, err)
	assert.Equal(t, f.otherOrg.ID, org.ID)

	_, err = f.accounts.CurrentOrganization(ctx, f.bob.ID, "other")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.accounts.CurrentOrganization(ctx, f.dave.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddMemberUpdatesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.accounts.AddMember(ctx, f.org.ID, f.alice.ID, "Boss", false))
	var m model.OrganizationMembership
	require.NoError(t, f.db.Where("organization_id = ? AND user_id = ?", f.org.ID, f.alice.ID).First(&m).Error)
	assert.Equal(t, "Boss", m.DisplayName)
	assert.False(t, m.IsAdmin)

	var n int64
	require.NoError(t, f.db.Model(&model.OrganizationMembership{}).Where("user_id = ?", f.alice.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
