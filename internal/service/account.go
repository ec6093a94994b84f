package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/pkg/auth"
)

// AccountService 账号与组织成员
type AccountService struct {
	db *gorm.DB
}

// NewAccountService 创建账号服务
func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db}
}

// Authenticate 用户名密码登录
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("unknown user: %w", ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("bad credentials: %w", ErrForbidden)
	}
	return &u, nil
}

// CreateUser 创建用户
func (s *AccountService) CreateUser(ctx context.Context, username, email, name, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required: %w", ErrInvalid)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("username %q already exists: %w", username, ErrConflict)
	}
	u := &model.User{Username: username, Email: email, Name: name, IsActive: true}
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetUser 获取用户
func (s *AccountService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Organizations 用户所属组织
func (s *AccountService) Organizations(ctx context.Context, userID uint) ([]model.Organization, error) {
	var orgs []model.Organization
	err := s.db.WithContext(ctx).
		Joins("JOIN organization_memberships om ON om.organization_id = organizations.id").
		Where("om.user_id = ?", userID).
		Order("organizations.id").
		Find(&orgs).Error
	return orgs, err
}

// CurrentOrganization 选择当前组织：优先 subdomain 指定的组织，否则用户的第一个组织
func (s *AccountService) CurrentOrganization(ctx context.Context, userID uint, subdomain string) (*model.Organization, error) {
	orgs, err := s.Organizations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, fmt.Errorf("user %d has no organization: %w", userID, ErrForbidden)
	}
	subdomain = strings.TrimSpace(subdomain)
	if subdomain == "" {
		return &orgs[0], nil
	}
	for i := range orgs {
		if orgs[i].Subdomain == subdomain {
			return &orgs[i], nil
		}
	}
	return nil, fmt.Errorf("not a member of organization %q: %w", subdomain, ErrForbidden)
}

// AddMember 将用户加入组织
func (s *AccountService) AddMember(ctx context.Context, orgID, userID uint, displayName string, admin bool) error {
	m := model.OrganizationMembership{OrganizationID: orgID, UserID: userID, DisplayName: displayName, IsAdmin: admin}
	return s.db.WithContext(ctx).
		Where(model.OrganizationMembership{OrganizationID: orgID, UserID: userID}).
		Assign(map[string]interface{}{"display_name": displayName, "is_admin": admin}).
		FirstOrCreate(&m).Error
}
