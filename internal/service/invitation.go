package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// InvitationTargetDiscussion 邀请目标类型
const InvitationTargetDiscussion = "discussion"

// InvitationService 邀请服务（目前只支持邀请加入讨论）
type InvitationService struct {
	db            *gorm.DB
	discussions   *DiscussionService
	notifications *NotificationService
}

// NewInvitationService 创建邀请服务
func NewInvitationService(db *gorm.DB, discussions *DiscussionService, notifications *NotificationService) *InvitationService {
	return &InvitationService{db: db, discussions: discussions, notifications: notifications}
}

// InviteInput 邀请参数：ToUserID 与 ToEmail 至少一个
type InviteInput struct {
	ToUserID *uint
	ToEmail  string
	Text     string
}

// Invite 邀请用户加入讨论，仅项目成员可发起
func (s *InvitationService) Invite(ctx context.Context, t *Thread, from *model.User, in InviteInput) (*model.Invitation, error) {
	ok, err := t.CanInviteGuests(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d cannot invite guests: %w", from.ID, ErrForbidden)
	}
	email := strings.TrimSpace(in.ToEmail)
	if in.ToUserID == nil && email == "" {
		return nil, fmt.Errorf("invitation needs a recipient: %w", ErrInvalid)
	}

	inv := &model.Invitation{
		OrganizationID: t.OrganizationID,
		FromUserID:     from.ID,
		ToEmail:        email,
		ToUserID:       in.ToUserID,
		TargetType:     InvitationTargetDiscussion,
		TargetID:       t.ID,
		Text:           strings.TrimSpace(in.Text),
		Token:          uuid.NewString(),
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	logger.Info("Invitation created", "invitation_id", inv.ID, "discussion_id", t.ID, "from_user_id", from.ID)

	if s.notifications != nil {
		if err := s.notifications.NotifyInvitee(ctx, inv, from, s.Describe(from, t)); err != nil {
			logger.Warn("Failed to notify invitee", "invitation_id", inv.ID, "error", err)
		}
	}
	return inv, nil
}

// Describe 邀请描述，例如 "alice invited you to join the discussion on Q1"
func (s *InvitationService) Describe(from *model.User, t *Thread) string {
	return fmt.Sprintf("%s invited you %s on %s", from.String(), InvitationVerbInf, t.Title())
}

// Accept 按令牌接受邀请，返回跳转地址
func (s *InvitationService) Accept(ctx context.Context, token string, user *model.User, addMessage func(string)) (string, error) {
	var inv model.Invitation
	err := s.db.WithContext(ctx).Preload("FromUser").Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("invitation: %w", ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if inv.RevokedAt != nil || inv.AcceptedAt != nil {
		return "", fmt.Errorf("invitation %d is no longer open: %w", inv.ID, ErrInvalid)
	}
	// 指定了站内用户的邀请只能由该用户接受
	if inv.ToUserID != nil && *inv.ToUserID != user.ID {
		return "", fmt.Errorf("invitation %d is addressed to another user: %w", inv.ID, ErrForbidden)
	}
	if inv.TargetType != InvitationTargetDiscussion {
		return "", fmt.Errorf("unsupported invitation target %q: %w", inv.TargetType, ErrInvalid)
	}

	t, err := s.discussions.Get(ctx, inv.OrganizationID, inv.TargetID)
	if err != nil {
		return "", err
	}
	valid, err := t.IsInvitationValid(ctx, &inv)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", fmt.Errorf("invitation %d is no longer valid: %w", inv.ID, ErrInvalid)
	}

	if err := t.AcceptInvitation(ctx, &inv, user, addMessage); err != nil {
		return "", err
	}
	now := time.Now()
	inv.AcceptedAt = &now
	inv.AcceptedUserID = &user.ID
	err = s.db.WithContext(ctx).Model(&inv).Updates(map[string]interface{}{
		"accepted_at":      inv.AcceptedAt,
		"accepted_user_id": inv.AcceptedUserID,
	}).Error
	if err != nil {
		return "", fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	logger.Info("Invitation accepted", "invitation_id", inv.ID, "user_id", user.ID)

	if s.notifications != nil && inv.FromUser != nil {
		desc := fmt.Sprintf("%s %s on %s", user.String(), InvitationVerbPast, t.Title())
		if _, err := s.notifications.Notify(ctx, []model.User{*inv.FromUser}, user, model.NotificationVerbJoined, t, desc); err != nil {
			logger.Warn("Failed to notify inviter", "invitation_id", inv.ID, "error", err)
		}
	}
	return t.InvitationRedirectURL(), nil
}

// Revoke 撤销邀请（仅邀请人）
func (s *InvitationService) Revoke(ctx context.Context, id, userID uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.Invitation{}).
		Where("id = ? AND from_user_id = ? AND accepted_at IS NULL AND revoked_at IS NULL", id, userID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invitation %d: %w", id, ErrNotFound)
	}
	return nil
}
