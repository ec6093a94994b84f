package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/database"
	"github.com/compliancetracker/compliancetracker/internal/model"
)

// fixture 一个组织、一个项目/任务/问题，以及以下用户：
// alice 项目管理员，bob 任务编辑者（普通成员），erin 普通成员，carol 与 dave 不在项目中
type fixture struct {
	db       *gorm.DB
	org      *model.Organization
	otherOrg *model.Organization

	alice, bob, carol, dave, erin *model.User

	project  *model.Project
	task     *model.Task
	question *model.TaskQuestion

	discussions   *DiscussionService
	notifications *NotificationService
	comments      *CommentService
	invitations   *InvitationService
	accounts      *AccountService
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.sqlite3")},
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)

	f := &fixture{db: db}
	f.accounts = NewAccountService(db)
	f.discussions = NewDiscussionService(db)
	f.notifications = NewNotificationService(db)
	f.comments = NewCommentService(db, f.discussions, f.notifications)
	f.invitations = NewInvitationService(db, f.discussions, f.notifications)

	f.org = &model.Organization{Name: "Acme", Subdomain: "acme"}
	f.otherOrg = &model.Organization{Name: "Other", Subdomain: "other"}
	require.NoError(t, db.Create(f.org).Error)
	require.NoError(t, db.Create(f.otherOrg).Error)

	mk := func(username, name string) *model.User {
		u, err := f.accounts.CreateUser(ctx, username, username+"@example.com", name, "pw-"+username)
		require.NoError(t, err)
		return u
	}
	f.alice = mk("alice", "Alice A")
	f.bob = mk("bob", "Bob B")
	f.carol = mk("carol", "")
	f.dave = mk("dave", "Dave D")
	f.erin = mk("erin", "Erin E")

	require.NoError(t, f.accounts.AddMember(ctx, f.org.ID, f.alice.ID, "Alice Admin", true))
	require.NoError(t, f.accounts.AddMember(ctx, f.org.ID, f.bob.ID, "", false))
	require.NoError(t, f.accounts.AddMember(ctx, f.org.ID, f.carol.ID, "Carol Guest", false))
	require.NoError(t, f.accounts.AddMember(ctx, f.org.ID, f.erin.ID, "", false))

	f.project = &model.Project{OrganizationID: f.org.ID, Title: "SOC 2"}
	require.NoError(t, db.Create(f.project).Error)
	require.NoError(t, db.Create(&model.ProjectMembership{ProjectID: f.project.ID, UserID: f.alice.ID, IsAdmin: true}).Error)
	require.NoError(t, db.Create(&model.ProjectMembership{ProjectID: f.project.ID, UserID: f.bob.ID}).Error)
	require.NoError(t, db.Create(&model.ProjectMembership{ProjectID: f.project.ID, UserID: f.erin.ID}).Error)

	f.task = &model.Task{ProjectID: f.project.ID, Title: "Access control", EditorID: f.bob.ID}
	require.NoError(t, db.Create(f.task).Error)
	f.question = &model.TaskQuestion{TaskID: f.task.ID, Key: "mfa", Title: "Is MFA enforced?"}
	require.NoError(t, db.Create(f.question).Error)
	f.question.Task = f.task
	return f
}

// thread 获取或创建问题上的讨论
func (f *fixture) thread(t *testing.T) *Thread {
	t.Helper()
	th, err := f.discussions.GetFor(context.Background(), f.org.ID, NewQuestionTarget(f.question), true, false)
	require.NoError(t, err)
	return th
}

func userIDs(users []model.User) []uint {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
