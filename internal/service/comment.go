package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
	"github.com/compliancetracker/compliancetracker/pkg/markdown"
)

// 评论作者在讨论中的角色
const (
	RoleEditor            = "editor"
	RoleTeamAdmin         = "team admin"
	RoleGuest             = "guest"
	RoleProjectMember     = "project member"
	RoleFormerParticipant = "former participant"
)

const maxEmojisLen = 256

// CommentService 评论服务
type CommentService struct {
	db            *gorm.DB
	discussions   *DiscussionService
	notifications *NotificationService
	now           func() time.Time
}

// NewCommentService 创建评论服务
func NewCommentService(db *gorm.DB, discussions *DiscussionService, notifications *NotificationService) *CommentService {
	return &CommentService{
		db:            db,
		discussions:   discussions,
		notifications: notifications,
		now:           time.Now,
	}
}

// PostCommentInput 发表评论参数
type PostCommentInput struct {
	Text           string
	RepliesToID    *uint
	Emojis         []string
	ProposedAnswer json.RawMessage
}

// CommentView 评论渲染结果
type CommentView struct {
	Type             string   `json:"type"`
	ID               uint     `json:"id"`
	RepliesTo        *uint    `json:"replies_to"`
	User             UserRef  `json:"user"`
	UserRole         string   `json:"user_role"`
	DateRelative     string   `json:"date_relative"`
	DatePosix        float64  `json:"date_posix"`
	Text             string   `json:"text"`
	TextRendered     string   `json:"text_rendered"`
	NotificationText string   `json:"notification_text"`
	Emojis           []string `json:"emojis"`
}

// CanSee 评论未删除且用户为讨论参与者
func CanSee(ctx context.Context, t *Thread, c *model.Comment, userID uint) (bool, error) {
	if c.Deleted {
		return false, nil
	}
	return t.IsParticipant(ctx, userID)
}

// CanEdit 评论未删除、用户为作者且仍是参与者
func CanEdit(ctx context.Context, t *Thread, c *model.Comment, userID uint) (bool, error) {
	if c.Deleted {
		return false, nil
	}
	if c.UserID != userID {
		return false, nil
	}
	return t.IsParticipant(ctx, userID)
}

// PushHistory 在 extra.history 中追加字段修改前的值
func PushHistory(c *model.Comment, field string, now time.Time) error {
	var previous interface{}
	switch field {
	case "text":
		previous = c.Text
	case "emojis":
		if c.Emojis != nil {
			previous = *c.Emojis
		}
	case "proposed_answer":
		if len(c.ProposedAnswer) > 0 {
			if err := json.Unmarshal(c.ProposedAnswer, &previous); err != nil {
				return fmt.Errorf("failed to decode proposed answer: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown comment field %q: %w", field, ErrInvalid)
	}

	extra := map[string]interface{}{}
	if len(c.Extra) > 0 {
		var v interface{}
		if err := json.Unmarshal(c.Extra, &v); err == nil {
			if m, ok := v.(map[string]interface{}); ok {
				extra = m
			}
		}
	}
	history, _ := extra["history"].([]interface{})
	entry := map[string]interface{}{"when": now.Format(time.RFC3339Nano)}
	entry["previous-"+field] = previous
	history = append(history, entry)
	extra["history"] = history

	raw, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	c.Extra = datatypes.JSON(raw)
	return nil
}

// EmojiList 评论表情列表，未设置时为 nil
func EmojiList(c *model.Comment) []string {
	if c.Emojis == nil || *c.Emojis == "" {
		return nil
	}
	return strings.Split(*c.Emojis, ",")
}

// Get 获取评论及其所在讨论（限定组织）
func (s *CommentService) Get(ctx context.Context, orgID, commentID uint) (*model.Comment, *Thread, error) {
	var c model.Comment
	err := s.db.WithContext(ctx).Preload("User").First(&c, commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	t, err := s.discussions.Get(ctx, orgID, c.DiscussionID)
	if err != nil {
		return nil, nil, err
	}
	return &c, t, nil
}

// RenderContext 渲染评论；已删除的评论不可渲染
func (s *CommentService) RenderContext(ctx context.Context, t *Thread, c *model.Comment, viewerID uint) (*CommentView, error) {
	if c.Deleted {
		return nil, ErrCommentDeleted
	}
	if c.User == nil {
		var u model.User
		if err := s.db.WithContext(ctx).First(&u, c.UserID).Error; err != nil {
			return nil, fmt.Errorf("failed to load comment author: %w", err)
		}
		c.User = &u
	}

	rendered, _, err := MatchAutocompletes(ctx, t, c.Text, viewerID, func(tag string) string {
		return "**" + tag + "**"
	})
	if err != nil {
		return nil, err
	}

	ref, err := t.UserRef(ctx, c.User)
	if err != nil {
		return nil, err
	}
	role, err := s.userRole(ctx, t, c)
	if err != nil {
		return nil, err
	}

	return &CommentView{
		Type:             "comment",
		ID:               c.ID,
		RepliesTo:        c.RepliesToID,
		User:             ref,
		UserRole:         role,
		DateRelative:     RelDate(c.CreatedAt, s.now()) + " ago",
		DatePosix:        float64(c.CreatedAt.UnixNano()) / float64(time.Second),
		Text:             c.Text,
		TextRendered:     markdown.Render(rendered),
		NotificationText: c.User.String() + ": " + c.Text,
		Emojis:           EmojiList(c),
	}, nil
}

// userRole 作者角色，优先级：editor > team admin > guest > project member > former participant
func (s *CommentService) userRole(ctx context.Context, t *Thread, c *model.Comment) (string, error) {
	if t.Target != nil {
		if task := t.Target.Task(); task != nil && task.EditorID == c.UserID {
			return RoleEditor, nil
		}
	}
	pm, err := t.projectMembership(ctx, c.UserID)
	if err != nil {
		return "", err
	}
	if pm != nil && pm.IsAdmin {
		return RoleTeamAdmin, nil
	}
	guest, err := t.IsGuest(ctx, c.UserID)
	if err != nil {
		return "", err
	}
	if guest {
		return RoleGuest, nil
	}
	if pm != nil {
		return RoleProjectMember, nil
	}
	return RoleFormerParticipant, nil
}

// List 讨论中 viewer 可见的评论（按时间顺序）
func (s *CommentService) List(ctx context.Context, t *Thread, viewerID uint) ([]CommentView, error) {
	ok, err := t.IsParticipant(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	views := []CommentView{}
	if !ok {
		return views, nil
	}

	var comments []model.Comment
	err = s.db.WithContext(ctx).Preload("User").
		Where("discussion_id = ? AND deleted = ?", t.ID, false).
		Order("created_at, id").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	for i := range comments {
		v, err := s.RenderContext(ctx, t, &comments[i], viewerID)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// Post 发表评论并通知关注者与被提及的用户
func (s *CommentService) Post(ctx context.Context, t *Thread, author *model.User, in PostCommentInput) (*model.Comment, error) {
	ok, err := t.IsParticipant(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d is not a participant: %w", author.ID, ErrForbidden)
	}

	text := strings.TrimSpace(in.Text)
	emojis, err := joinEmojis(in.Emojis)
	if err != nil {
		return nil, err
	}
	if text == "" && emojis == nil && len(in.ProposedAnswer) == 0 {
		return nil, fmt.Errorf("comment is empty: %w", ErrInvalid)
	}
	if in.RepliesToID != nil {
		if err := s.checkReplyTarget(ctx, t, *in.RepliesToID); err != nil {
			return nil, err
		}
	}

	c := &model.Comment{
		DiscussionID: t.ID,
		RepliesToID:  in.RepliesToID,
		UserID:       author.ID,
		User:         author,
		Emojis:       emojis,
		Text:         text,
	}
	if len(in.ProposedAnswer) > 0 {
		if !json.Valid(in.ProposedAnswer) {
			return nil, fmt.Errorf("proposed answer is not valid json: %w", ErrInvalid)
		}
		c.ProposedAnswer = datatypes.JSON(in.ProposedAnswer)
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(c).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	logger.Info("Comment posted", "discussion_id", t.ID, "comment_id", c.ID, "user_id", author.ID)

	s.notify(ctx, t, author, c)
	return c, nil
}

// notify 通知失败只记录日志，不影响评论本身
func (s *CommentService) notify(ctx context.Context, t *Thread, author *model.User, c *model.Comment) {
	if s.notifications == nil {
		return
	}
	description := author.String() + ": " + c.Text

	_, mentioned, err := MatchAutocompletes(ctx, t, c.Text, author.ID, func(tag string) string { return tag })
	if err != nil {
		logger.Warn("Failed to match mentions", "comment_id", c.ID, "error", err)
	}
	mentionedIDs := make(map[uint]struct{}, len(mentioned))
	var mentionedUsers []model.User
	for _, item := range mentioned {
		mentionedIDs[item.UserID] = struct{}{}
		mentionedUsers = append(mentionedUsers, model.User{ID: item.UserID})
	}
	if len(mentionedUsers) > 0 {
		if _, err := s.notifications.Notify(ctx, mentionedUsers, author, model.NotificationVerbMentioned, t, description); err != nil {
			logger.Warn("Failed to send mention notifications", "comment_id", c.ID, "error", err)
		}
	}

	watchers, err := t.NotificationWatchers(ctx)
	if err != nil {
		logger.Warn("Failed to load notification watchers", "discussion_id", t.ID, "error", err)
		return
	}
	recipients := make([]model.User, 0, len(watchers))
	for _, w := range watchers {
		if _, ok := mentionedIDs[w.ID]; !ok {
			recipients = append(recipients, w)
		}
	}
	if _, err := s.notifications.Notify(ctx, recipients, author, model.NotificationVerbCommented, t, description); err != nil {
		logger.Warn("Failed to send comment notifications", "comment_id", c.ID, "error", err)
	}
}

func (s *CommentService) checkReplyTarget(ctx context.Context, t *Thread, id uint) error {
	var parent model.Comment
	err := s.db.WithContext(ctx).Select("id", "discussion_id", "deleted").First(&parent, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("reply target %d: %w", id, ErrInvalid)
	}
	if err != nil {
		return err
	}
	if parent.DiscussionID != t.ID || parent.Deleted {
		return fmt.Errorf("reply target %d is not in this discussion: %w", id, ErrInvalid)
	}
	return nil
}

// Edit 修改评论正文，旧内容记入历史
func (s *CommentService) Edit(ctx context.Context, t *Thread, c *model.Comment, userID uint, text string) error {
	ok, err := CanEdit(ctx, t, c, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("comment %d: %w", c.ID, ErrForbidden)
	}
	text = strings.TrimSpace(text)
	if text == c.Text {
		return nil
	}
	if err := PushHistory(c, "text", s.now()); err != nil {
		return err
	}
	c.Text = text
	err = s.db.WithContext(ctx).Model(c).Updates(map[string]interface{}{
		"text":  c.Text,
		"extra": c.Extra,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	logger.Info("Comment edited", "comment_id", c.ID, "user_id", userID)
	return nil
}

// Delete 软删除评论
func (s *CommentService) Delete(ctx context.Context, t *Thread, c *model.Comment, userID uint) error {
	ok, err := CanEdit(ctx, t, c, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("comment %d: %w", c.ID, ErrForbidden)
	}
	c.Deleted = true
	if err := s.db.WithContext(ctx).Model(c).Update("deleted", true).Error; err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	logger.Info("Comment deleted", "comment_id", c.ID, "user_id", userID)
	return nil
}

// React 对评论做表情回应：回应本身是一条回复目标评论、正文为空的评论，重复回应时更新表情，表情为空时撤回
func (s *CommentService) React(ctx context.Context, t *Thread, target *model.Comment, user *model.User, emojis []string) (*model.Comment, error) {
	ok, err := CanSee(ctx, t, target, user.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("comment %d: %w", target.ID, ErrForbidden)
	}
	joined, err := joinEmojis(emojis)
	if err != nil {
		return nil, err
	}

	var reaction model.Comment
	err = s.db.WithContext(ctx).
		Where("discussion_id = ? AND user_id = ? AND replies_to_id = ? AND text = ? AND deleted = ?",
			t.ID, user.ID, target.ID, "", false).
		First(&reaction).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if joined == nil {
			return nil, fmt.Errorf("reaction needs at least one emoji: %w", ErrInvalid)
		}
		targetID := target.ID
		reaction = model.Comment{
			DiscussionID: t.ID,
			RepliesToID:  &targetID,
			UserID:       user.ID,
			Emojis:       joined,
		}
		if err := s.db.WithContext(ctx).Create(&reaction).Error; err != nil {
			return nil, fmt.Errorf("failed to create reaction: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		if err := PushHistory(&reaction, "emojis", s.now()); err != nil {
			return nil, err
		}
		reaction.Emojis = joined
		// 清空表情即撤回回应
		reaction.Deleted = joined == nil
		err := s.db.WithContext(ctx).Model(&reaction).Updates(map[string]interface{}{
			"emojis":  reaction.Emojis,
			"extra":   reaction.Extra,
			"deleted": reaction.Deleted,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update reaction: %w", err)
		}
	}
	reaction.User = user
	return &reaction, nil
}

// joinEmojis 拼接为逗号分隔字符串；为空时返回 nil
func joinEmojis(emojis []string) (*string, error) {
	clean := make([]string, 0, len(emojis))
	for _, e := range emojis {
		if e = strings.TrimSpace(e); e != "" {
			clean = append(clean, e)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	joined := strings.Join(clean, ",")
	if len(joined) > maxEmojisLen {
		return nil, fmt.Errorf("emojis exceed %d characters: %w", maxEmojisLen, ErrInvalid)
	}
	return &joined, nil
}
