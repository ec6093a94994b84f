package model

import (
	"fmt"
	"time"
)

// Organization 组织
type Organization struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	Subdomain string    `json:"subdomain" gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Organization) TableName() string {
	return "organizations"
}

// User 用户
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"type:varchar(150);not null;uniqueIndex"`
	Email        string    `json:"email" gorm:"type:varchar(254)"`
	Name         string    `json:"name" gorm:"type:varchar(255)"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// String 用于通知文本，如 "alice: 评论内容"
func (u User) String() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// OrganizationMembership 组织成员，DisplayName 为该组织内的显示名
type OrganizationMembership struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_org_member"`
	UserID         uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_org_member"`
	DisplayName    string    `json:"display_name" gorm:"type:varchar(255)"`
	IsAdmin        bool      `json:"is_admin" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (OrganizationMembership) TableName() string {
	return "organization_memberships"
}

// Project 项目
type Project struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;index"`
	Title          string    `json:"title" gorm:"type:varchar(255);not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Project) TableName() string {
	return "projects"
}

// ProjectMembership 项目成员
type ProjectMembership struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ProjectID uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_project_member"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_project_member"`
	IsAdmin   bool      `json:"is_admin" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (ProjectMembership) TableName() string {
	return "project_memberships"
}

// Task 项目任务；DeletedAt 非空表示任务已删除（记录保留）
type Task struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	ProjectID uint       `json:"project_id" gorm:"not null;index"`
	Project   *Project   `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Title     string     `json:"title" gorm:"type:varchar(255);not null"`
	EditorID  uint       `json:"editor_id" gorm:"not null;index"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Task) TableName() string {
	return "tasks"
}

// AbsoluteURL 任务页面地址
func (t *Task) AbsoluteURL() string {
	return fmt.Sprintf("/tasks/%d", t.ID)
}

// IsDeleted 任务是否已删除
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// TaskQuestion 任务中的问题，讨论通常挂在问题上
type TaskQuestion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TaskID    uint      `json:"task_id" gorm:"not null;index"`
	Task      *Task     `json:"task,omitempty" gorm:"foreignKey:TaskID"`
	Key       string    `json:"key" gorm:"type:varchar(64);not null"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (TaskQuestion) TableName() string {
	return "task_questions"
}

// AbsoluteURL 问题页面地址
func (q *TaskQuestion) AbsoluteURL() string {
	return fmt.Sprintf("/tasks/%d/questions/%s", q.TaskID, q.Key)
}
