package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// NotificationService 站内通知
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService 创建通知服务
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// Notify 向 recipients（排除 actor 本人）发送关于讨论的通知，返回发送数量
func (s *NotificationService) Notify(ctx context.Context, recipients []model.User, actor *model.User, verb string, t *Thread, description string) (int, error) {
	link := ""
	if !t.SuppressLinkFromNotifications() {
		link = t.AbsoluteURL()
	}

	rows := make([]model.Notification, 0, len(recipients))
	seen := make(map[uint]struct{}, len(recipients))
	for _, r := range recipients {
		if r.ID == actor.ID {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		rows = append(rows, model.Notification{
			RecipientID: r.ID,
			ActorID:     actor.ID,
			Verb:        verb,
			TargetType:  "discussion",
			TargetID:    t.ID,
			Description: description,
			Link:        link,
			Unread:      true,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to create notifications: %w", err)
	}
	logger.Debug("Notifications sent", "discussion_id", t.ID, "verb", verb, "count", len(rows))
	return len(rows), nil
}

// NotifyInvitee 通知被邀请的站内用户，链接指向接受邀请页
func (s *NotificationService) NotifyInvitee(ctx context.Context, inv *model.Invitation, actor *model.User, description string) error {
	if inv.ToUserID == nil || *inv.ToUserID == actor.ID {
		return nil
	}
	n := model.Notification{
		RecipientID: *inv.ToUserID,
		ActorID:     actor.ID,
		Verb:        model.NotificationVerbInvited,
		TargetType:  inv.TargetType,
		TargetID:    inv.TargetID,
		Description: description,
		Link:        "/invitations/accept/" + inv.Token,
		Unread:      true,
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("failed to create invitation notification: %w", err)
	}
	return nil
}

// List 用户通知列表（最新在前）
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("recipient_id = ?", userID)
	if unreadOnly {
		q = q.Where("unread = ?", true)
	}
	var list []model.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// UnreadCount 未读数量
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND unread = ?", userID, true).
		Count(&n).Error
	return n, err
}

// MarkRead 标记单条已读
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Update("unread", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllRead 全部标记已读
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND unread = ?", userID, true).
		Update("unread", false)
	return res.RowsAffected, res.Error
}
