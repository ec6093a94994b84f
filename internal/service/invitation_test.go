package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliancetracker/compliancetracker/internal/model"
)

func TestInviteRequiresProjectMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	_, err := f.invitations.Invite(ctx, th, f.dave, InviteInput{ToEmail: "x@example.com"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.invitations.Invite(ctx, th, f.bob, InviteInput{})
	assert.ErrorIs(t, err, ErrInvalid)

	inv, err := f.invitations.Invite(ctx, th, f.bob, InviteInput{ToUserID: &f.carol.ID, Text: " please review "})
	require.NoError(t, err)
	assert.NotEmpty(t, inv.Token)
	assert.Equal(t, "please review", inv.Text)
	assert.Equal(t, InvitationTargetDiscussion, inv.TargetType)
	assert.Equal(t, th.ID, inv.TargetID)
	assert.Equal(t, "Bob B invited you to join the discussion on Is MFA enforced?", f.invitations.Describe(f.bob, th))
}

func TestAcceptInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	inv, err := f.invitations.Invite(ctx, th, f.bob, InviteInput{ToUserID: &f.carol.ID})
	require.NoError(t, err)

	var messages []string
	redirect, err := f.invitations.Accept(ctx, inv.Token, f.carol, func(m string) { messages = append(messages, m) })
	require.NoError(t, err)
	assert.Equal(t, f.question.AbsoluteURL(), redirect)
	assert.Equal(t, []string{"You are now a participant in the discussion on Is MFA enforced?."}, messages)

	ok, err := th.IsGuest(ctx, f.carol.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	var stored model.Invitation
	require.NoError(t, f.db.First(&stored, inv.ID).Error)
	require.NotNil(t, stored.AcceptedAt)
	require.NotNil(t, stored.AcceptedUserID)
	assert.Equal(t, f.carol.ID, *stored.AcceptedUserID)

	var n model.Notification
	require.NoError(t, f.db.Where("recipient_id = ?", f.bob.ID).First(&n).Error)
	assert.Equal(t, model.NotificationVerbJoined, n.Verb)
	assert.Equal(t, f.carol.ID, n.ActorID)
	assert.Equal(t, "carol joined the discussion on Is MFA enforced?", n.Description)

	_, err = f.invitations.Accept(ctx, inv.Token, f.carol, nil)
	assert.ErrorIs(t, err, ErrInvalid, "an accepted invitation cannot be reused")
}

func TestAcceptInvitationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	_, err := f.invitations.Accept(ctx, "no-such-token", f.carol, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	revoked, err := f.invitations.Invite(ctx, th, f.bob, InviteInput{ToEmail: "carol@example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.invitations.Revoke(ctx, revoked.ID, f.erin.ID), ErrNotFound, "only the inviter may revoke")
	require.NoError(t, f.invitations.Revoke(ctx, revoked.ID, f.bob.ID))
	_, err = f.invitations.Accept(ctx, revoked.Token, f.carol, nil)
	assert.ErrorIs(t, err, ErrInvalid)

	// 邀请人离开项目后邀请失效
	stale, err := f.invitations.Invite(ctx, th, f.erin, InviteInput{ToEmail: "dave@example.com"})
	require.NoError(t, err)
	require.NoError(t, f.db.Where("user_id = ?", f.erin.ID).Delete(&model.ProjectMembership{}).Error)
	_, err = f.invitations.Accept(ctx, stale.Token, f.dave, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	ok, err := th.IsParticipant(ctx, f.dave.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcceptInvitationByParticipantIsQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	inv, err := f.invitations.Invite(ctx, th, f.alice, InviteInput{ToUserID: &f.erin.ID})
	require.NoError(t, err)

	called := false
	_, err = f.invitations.Accept(ctx, inv.Token, f.erin, func(string) { called = true })
	require.NoError(t, err)
	assert.False(t, called)

	guests, err := th.ListGuests(ctx)
	require.NoError(t, err)
	assert.Empty(t, guests)
}

func TestInviteNotifiesInvitee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	inv, err := f.invitations.Invite(ctx, th, f.bob, InviteInput{ToUserID: &f.carol.ID})
	require.NoError(t, err)

	list, err := f.notifications.List(ctx, f.carol.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationVerbInvited, list[0].Verb)
	assert.Equal(t, f.bob.ID, list[0].ActorID)
	assert.Equal(t, "Bob B invited you to join the discussion on Is MFA enforced?", list[0].Description)
	assert.Equal(t, "/invitations/accept/"+inv.Token, list[0].Link)

	// 仅邮箱的邀请不产生站内通知
	_, err = f.invitations.Invite(ctx, th, f.bob, InviteInput{ToEmail: "guest@example.com"})
	require.NoError(t, err)
	count, err := f.notifications.UnreadCount(ctx, f.carol.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestAcceptInvitationAddressedToAnotherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	inv, err := f.invitations.Invite(ctx, th, f.bob, InviteInput{ToUserID: &f.carol.ID})
	require.NoError(t, err)

	_, err = f.invitations.Accept(ctx, inv.Token, f.dave, nil)
	assert.ErrorIs(t, err, ErrForbidden)
	ok, err := th.IsGuest(ctx, f.dave.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	var stored model.Invitation
	require.NoError(t, f.db.First(&stored, inv.ID).Error)
	assert.Nil(t, stored.AcceptedAt, "the invitation stays open for its recipient")

	_, err = f.invitations.Accept(ctx, inv.Token, f.carol, nil)
	require.NoError(t, err)
}
