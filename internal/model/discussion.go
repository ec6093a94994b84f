package model

import (
	"time"

	"gorm.io/datatypes"
)

// Discussion 讨论，通过 AttachedToType/AttachedToID 泛型挂载到其它对象
// 挂载目标被删除时不做保护，讨论变为悬空状态
type Discussion struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	OrganizationID uint           `json:"organization_id" gorm:"not null;index"`
	Organization   *Organization  `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
	AttachedToType string         `json:"attached_to_type" gorm:"type:varchar(64);not null;uniqueIndex:idx_discussion_attached"`
	AttachedToID   uint           `json:"attached_to_id" gorm:"not null;uniqueIndex:idx_discussion_attached"`
	Guests         []User         `json:"guests,omitempty" gorm:"many2many:discussion_guests;"`
	Extra          datatypes.JSON `json:"extra,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 表名
func (Discussion) TableName() string {
	return "discussions"
}

// Comment 讨论中的一条评论，RepliesToID 指向被回复的评论
type Comment struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	DiscussionID   uint           `json:"discussion_id" gorm:"not null;index:idx_comment_discussion_user"`
	Discussion     *Discussion    `json:"-" gorm:"foreignKey:DiscussionID"`
	RepliesToID    *uint          `json:"replies_to,omitempty" gorm:"index"`
	UserID         uint           `json:"user_id" gorm:"not null;index:idx_comment_discussion_user"`
	User           *User          `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Emojis         *string        `json:"emojis,omitempty" gorm:"type:varchar(256)"`
	Text           string         `json:"text" gorm:"type:text"`
	ProposedAnswer datatypes.JSON `json:"proposed_answer,omitempty"`
	Deleted        bool           `json:"deleted" gorm:"not null;default:false"`
	Extra          datatypes.JSON `json:"extra,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 表名
func (Comment) TableName() string {
	return "comments"
}

// Invitation 邀请（当前仅支持邀请加入讨论）
type Invitation struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	OrganizationID uint       `json:"organization_id" gorm:"not null;index"`
	FromUserID     uint       `json:"from_user_id" gorm:"not null;index"`
	FromUser       *User      `json:"from_user,omitempty" gorm:"foreignKey:FromUserID"`
	ToEmail        string     `json:"to_email" gorm:"type:varchar(254)"`
	ToUserID       *uint      `json:"to_user_id,omitempty"`
	TargetType     string     `json:"target_type" gorm:"type:varchar(64);not null"`
	TargetID       uint       `json:"target_id" gorm:"not null"`
	Text           string     `json:"text" gorm:"type:text"`
	Token          string     `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	AcceptedUserID *uint      `json:"accepted_user_id,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Invitation) TableName() string {
	return "invitations"
}

// Notification 站内通知；Link 为空表示不提供跳转
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RecipientID uint      `json:"recipient_id" gorm:"not null;index"`
	ActorID     uint      `json:"actor_id" gorm:"not null"`
	Verb        string    `json:"verb" gorm:"type:varchar(64);not null"`
	TargetType  string    `json:"target_type" gorm:"type:varchar(64)"`
	TargetID    uint      `json:"target_id"`
	Description string    `json:"description" gorm:"type:text"`
	Link        string    `json:"link" gorm:"type:varchar(512)"`
	Unread      bool      `json:"unread" gorm:"not null;default:true;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 表名
func (Notification) TableName() string {
	return "notifications"
}

// 通知动作
const (
	NotificationVerbCommented = "commented"
	NotificationVerbMentioned = "mentioned you"
	NotificationVerbJoined    = "joined the discussion"
	NotificationVerbInvited   = "invited you"
)
