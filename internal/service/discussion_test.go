package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliancetracker/compliancetracker/internal/model"
)

func TestGetForModes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := NewQuestionTarget(f.question)

	th, err := f.discussions.GetFor(ctx, f.org.ID, target, false, false)
	require.NoError(t, err)
	assert.Nil(t, th)

	_, err = f.discussions.GetFor(ctx, f.org.ID, target, false, true)
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := f.discussions.GetFor(ctx, f.org.ID, target, true, false)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, ContentTypeTaskQuestion, created.AttachedToType)
	assert.Equal(t, f.question.ID, created.AttachedToID)

	again, err := f.discussions.GetFor(ctx, f.org.ID, target, true, false)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	found, err := f.discussions.GetFor(ctx, f.org.ID, target, false, true)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestGetForIsScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	other, err := f.discussions.GetFor(ctx, f.otherOrg.ID, NewQuestionTarget(f.question), false, false)
	require.NoError(t, err)
	assert.Nil(t, other)

	_, err = f.discussions.Get(ctx, f.otherOrg.ID, th.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTitleAndURL(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t)

	assert.Equal(t, "Is MFA enforced?", th.Title())
	assert.Equal(t, f.question.AbsoluteURL()+"#discussion", th.AbsoluteURL())
	assert.Equal(t, f.question.AbsoluteURL(), th.InvitationRedirectURL())
	assert.False(t, th.SuppressLinkFromNotifications())
}

func TestDanglingDiscussion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)
	require.NoError(t, f.db.Delete(&model.TaskQuestion{}, f.question.ID).Error)

	dangling, err := f.discussions.Get(ctx, f.org.ID, th.ID)
	require.NoError(t, err)
	assert.Nil(t, dangling.Target)
	assert.Equal(t, "<Deleted Discussion>", dangling.Title())
	assert.True(t, dangling.SuppressLinkFromNotifications())

	ok, err := dangling.IsParticipant(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParticipantsAreMembersAndGuests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)
	require.NoError(t, th.AddGuest(ctx, f.carol))
	// 项目成员同时作为访客时不重复
	require.NoError(t, th.AddGuest(ctx, f.bob))

	users, err := th.AllParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.alice.ID, f.bob.ID, f.carol.ID, f.erin.ID}, userIDs(users))

	for _, u := range []*model.User{f.alice, f.bob, f.carol, f.erin} {
		ok, err := th.IsParticipant(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, ok, u.Username)
	}
	ok, err := th.IsParticipant(ctx, f.dave.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeletedTaskHasNoParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)
	now := time.Now()
	f.task.DeletedAt = &now

	ok, err := th.IsParticipant(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	watchers, err := th.NotificationWatchers(ctx)
	require.NoError(t, err)
	assert.Empty(t, watchers)

	ac, err := th.Autocompletes(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, ac)
}

func TestCanInviteGuests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)
	require.NoError(t, th.AddGuest(ctx, f.carol))

	ok, err := th.CanInviteGuests(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = th.CanInviteGuests(ctx, f.carol.ID)
	require.NoError(t, err)
	assert.False(t, ok, "guests cannot invite")
}

func TestThreadAcceptInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	var messages []string
	add := func(m string) { messages = append(messages, m) }

	require.NoError(t, th.AcceptInvitation(ctx, &model.Invitation{FromUserID: f.alice.ID}, f.dave, add))
	assert.Equal(t, []string{"You are now a participant in the discussion on Is MFA enforced?."}, messages)
	ok, err := th.IsParticipant(ctx, f.dave.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// 已是参与者时不做处理
	require.NoError(t, th.AcceptInvitation(ctx, &model.Invitation{FromUserID: f.alice.ID}, f.dave, add))
	require.NoError(t, th.AcceptInvitation(ctx, &model.Invitation{FromUserID: f.alice.ID}, f.erin, add))
	assert.Len(t, messages, 1)

	assert.Equal(t, "to join the discussion", InvitationVerbInf)
	assert.Equal(t, "joined the discussion", InvitationVerbPast)
}

func TestIsInvitationValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)

	ok, err := th.IsInvitationValid(ctx, &model.Invitation{FromUserID: f.bob.ID})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = th.IsInvitationValid(ctx, &model.Invitation{FromUserID: f.dave.ID})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotificationWatchers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)
	require.NoError(t, th.AddGuest(ctx, f.carol))

	watchers, err := th.NotificationWatchers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.alice.ID, f.bob.ID, f.carol.ID, f.erin.ID}, userIDs(watchers))
}

func TestAutocompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t)
	require.NoError(t, th.AddGuest(ctx, f.carol))

	ac, err := th.Autocompletes(ctx, f.dave.ID)
	require.NoError(t, err)
	assert.Empty(t, ac)

	ac, err = th.Autocompletes(ctx, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []AutocompleteItem{
		{UserID: f.alice.ID, Tag: "alice", Display: "Alice Admin"},
		{UserID: f.bob.ID, Tag: "bob", Display: "Bob B"},
		{UserID: f.carol.ID, Tag: "carol", Display: "Carol Guest"},
		{UserID: f.erin.ID, Tag: "erin", Display: "Erin E"},
	}, ac["@"])
}

func TestForQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	th, err := f.discussions.ForQuestion(ctx, f.org.ID, f.question.ID)
	require.NoError(t, err)
	assert.Equal(t, "Is MFA enforced?", th.Title())

	again, err := f.discussions.ForQuestion(ctx, f.org.ID, f.question.ID)
	require.NoError(t, err)
	assert.Equal(t, th.ID, again.ID)

	byKey, err := f.discussions.ForQuestionKey(ctx, f.org.ID, f.task.ID, "mfa")
	require.NoError(t, err)
	assert.Equal(t, th.ID, byKey.ID)
	_, err = f.discussions.ForQuestionKey(ctx, f.org.ID, f.task.ID, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.discussions.ForQuestion(ctx, f.otherOrg.ID, f.question.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.discussions.ForQuestion(ctx, f.org.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
