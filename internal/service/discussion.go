package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/util"
)

// 讨论作为邀请目标时的动作描述
const (
	InvitationVerbInf  = "to join the discussion"
	InvitationVerbPast = "joined the discussion"

	deletedDiscussionTitle = "<Deleted Discussion>"
)

// DiscussionService 讨论服务
type DiscussionService struct {
	db *gorm.DB
}

// NewDiscussionService 创建讨论服务
func NewDiscussionService(db *gorm.DB) *DiscussionService {
	return &DiscussionService{db: db}
}

// Thread 讨论及其挂载对象；Target 为 nil 表示挂载对象已被删除
type Thread struct {
	*model.Discussion
	Target Attachable

	db *gorm.DB
}

// UserRef 用户在某组织内的展示信息
type UserRef struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// AutocompleteItem 评论输入时的自动补全项
type AutocompleteItem struct {
	UserID  uint   `json:"user_id"`
	Tag     string `json:"tag"`
	Display string `json:"display"`
}

// Autocompletes 触发字符 -> 补全项
type Autocompletes map[string][]AutocompleteItem

// GetFor 查找挂载在 obj 上的讨论（限定组织）
// create 为 true 时不存在则创建；mustExist 为 true 时不存在返回 ErrNotFound；否则不存在返回 nil
func (s *DiscussionService) GetFor(ctx context.Context, orgID uint, obj Attachable, create, mustExist bool) (*Thread, error) {
	where := model.Discussion{
		OrganizationID: orgID,
		AttachedToType: obj.ContentType(),
		AttachedToID:   obj.ObjectID(),
	}
	db := s.db.WithContext(ctx)

	var d model.Discussion
	if create {
		if err := db.Where(where).FirstOrCreate(&d).Error; err != nil {
			return nil, fmt.Errorf("failed to get or create discussion: %w", err)
		}
		return s.thread(&d, obj), nil
	}

	err := db.Where(where).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if mustExist {
			return nil, fmt.Errorf("discussion for %s %d: %w", obj.ContentType(), obj.ObjectID(), ErrNotFound)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.thread(&d, obj), nil
}

// Get 按 ID 获取讨论（限定组织）并加载挂载对象
func (s *DiscussionService) Get(ctx context.Context, orgID, id uint) (*Thread, error) {
	var d model.Discussion
	err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("discussion %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.Wrap(ctx, &d)
}

// ForQuestion 获取或创建任务问题上的讨论；问题不属于该组织时返回 ErrNotFound
func (s *DiscussionService) ForQuestion(ctx context.Context, orgID, questionID uint) (*Thread, error) {
	target, err := LoadAttachable(ctx, s.db, ContentTypeTaskQuestion, questionID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("question %d: %w", questionID, ErrNotFound)
	}
	var n int64
	err = s.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ? AND organization_id = ?", target.ProjectID(), orgID).
		Count(&n).Error
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("question %d: %w", questionID, ErrNotFound)
	}
	return s.GetFor(ctx, orgID, target, true, false)
}

// ForQuestionKey 按任务与问题键定位问题讨论
func (s *DiscussionService) ForQuestionKey(ctx context.Context, orgID, taskID uint, key string) (*Thread, error) {
	if key == "" {
		return nil, fmt.Errorf("question key is empty: %w", ErrNotFound)
	}
	var q model.TaskQuestion
	err := s.db.WithContext(ctx).Select("id").Where(&model.TaskQuestion{TaskID: taskID, Key: key}).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("question %q of task %d: %w", key, taskID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.ForQuestion(ctx, orgID, q.ID)
}

// Wrap 为已加载的讨论记录解析挂载对象
func (s *DiscussionService) Wrap(ctx context.Context, d *model.Discussion) (*Thread, error) {
	target, err := LoadAttachable(ctx, s.db, d.AttachedToType, d.AttachedToID)
	if err != nil {
		return nil, err
	}
	return s.thread(d, target), nil
}

func (s *DiscussionService) thread(d *model.Discussion, target Attachable) *Thread {
	return &Thread{Discussion: d, Target: target, db: s.db}
}

// Title 挂载对象标题
func (t *Thread) Title() string {
	if t.Target == nil {
		return deletedDiscussionTitle
	}
	return t.Target.Title()
}

// String 通知文本中使用
func (t *Thread) String() string {
	return t.Title()
}

// AbsoluteURL 挂载对象页面上的讨论锚点；挂载对象已删除时返回空
func (t *Thread) AbsoluteURL() string {
	if t.Target == nil {
		return ""
	}
	return t.Target.AbsoluteURL() + "#discussion"
}

// SuppressLinkFromNotifications 挂载对象已删除时通知不附带链接
func (t *Thread) SuppressLinkFromNotifications() bool {
	return t.Target == nil
}

// closed 挂载对象已删除，或所属任务已被删除
func (t *Thread) closed() bool {
	if t.Target == nil {
		return true
	}
	task := t.Target.Task()
	return task != nil && task.IsDeleted()
}

// IsParticipant 用户是否为讨论参与者（项目成员或访客）；任务已删除时无人参与
func (t *Thread) IsParticipant(ctx context.Context, userID uint) (bool, error) {
	if t.closed() {
		return false, nil
	}
	users, err := t.AllParticipants(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// AllParticipants 项目成员与访客的并集（去重，按 ID 排序）
func (t *Thread) AllParticipants(ctx context.Context) ([]model.User, error) {
	members, err := t.projectMembers(ctx)
	if err != nil {
		return nil, err
	}
	guests, err := t.ListGuests(ctx)
	if err != nil {
		return nil, err
	}
	return mergeUsers(members, guests), nil
}

// ListGuests 讨论访客
func (t *Thread) ListGuests(ctx context.Context) ([]model.User, error) {
	var guests []model.User
	if err := t.db.WithContext(ctx).Model(t.Discussion).Association("Guests").Find(&guests); err != nil {
		return nil, fmt.Errorf("failed to load guests: %w", err)
	}
	sort.Slice(guests, func(i, j int) bool { return guests[i].ID < guests[j].ID })
	return guests, nil
}

func (t *Thread) projectMembers(ctx context.Context) ([]model.User, error) {
	if t.Target == nil || t.Target.ProjectID() == 0 {
		return nil, nil
	}
	var users []model.User
	err := t.db.WithContext(ctx).
		Joins("JOIN project_memberships pm ON pm.user_id = users.id").
		Where("pm.project_id = ?", t.Target.ProjectID()).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load project members: %w", err)
	}
	return users, nil
}

// projectMembership 用户在挂载对象所属项目中的成员记录，不存在返回 nil
func (t *Thread) projectMembership(ctx context.Context, userID uint) (*model.ProjectMembership, error) {
	if t.Target == nil || t.Target.ProjectID() == 0 {
		return nil, nil
	}
	var pm model.ProjectMembership
	err := t.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", t.Target.ProjectID(), userID).
		First(&pm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// CanInviteGuests 只有项目成员可以邀请访客
func (t *Thread) CanInviteGuests(ctx context.Context, userID uint) (bool, error) {
	pm, err := t.projectMembership(ctx, userID)
	if err != nil {
		return false, err
	}
	return pm != nil, nil
}

// AddGuest 添加访客
func (t *Thread) AddGuest(ctx context.Context, user *model.User) error {
	if err := t.db.WithContext(ctx).Model(t.Discussion).Association("Guests").Append(user); err != nil {
		return fmt.Errorf("failed to add guest: %w", err)
	}
	return nil
}

// IsGuest 用户是否为访客
func (t *Thread) IsGuest(ctx context.Context, userID uint) (bool, error) {
	guests, err := t.ListGuests(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range guests {
		if g.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// IsInvitationValid 邀请人仍可邀请访客时邀请才有效
func (t *Thread) IsInvitationValid(ctx context.Context, inv *model.Invitation) (bool, error) {
	return t.CanInviteGuests(ctx, inv.FromUserID)
}

// AcceptInvitation 接受邀请：已是参与者则不做处理，否则加入访客并提示
func (t *Thread) AcceptInvitation(ctx context.Context, inv *model.Invitation, accepted *model.User, addMessage func(string)) error {
	ok, err := t.IsParticipant(ctx, accepted.ID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := t.AddGuest(ctx, accepted); err != nil {
		return err
	}
	if addMessage != nil {
		addMessage(fmt.Sprintf("You are now a participant in the discussion on %s.", t.Title()))
	}
	return nil
}

// InvitationRedirectURL 接受邀请后跳转到挂载对象页面
func (t *Thread) InvitationRedirectURL() string {
	if t.Target == nil {
		return ""
	}
	return t.Target.AbsoluteURL()
}

// NotificationWatchers 接收讨论通知的用户；任务已删除时为空
func (t *Thread) NotificationWatchers(ctx context.Context) ([]model.User, error) {
	if t.closed() {
		return []model.User{}, nil
	}
	return t.AllParticipants(ctx)
}

// Autocompletes 用户可用的自动补全；非参与者为空
func (t *Thread) Autocompletes(ctx context.Context, userID uint) (Autocompletes, error) {
	ok, err := t.IsParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Autocompletes{}, nil
	}

	users, err := t.AllParticipants(ctx)
	if err != nil {
		return nil, err
	}
	names, err := t.displayNames(ctx, users)
	if err != nil {
		return nil, err
	}
	items := make([]AutocompleteItem, 0, len(users))
	for _, u := range users {
		items = append(items, AutocompleteItem{UserID: u.ID, Tag: u.Username, Display: names[u.ID]})
	}
	util.SortByName(items, func(i AutocompleteItem) string { return i.Display })
	return Autocompletes{"@": items}, nil
}

// UserRef 用户在讨论所属组织中的展示信息
func (t *Thread) UserRef(ctx context.Context, user *model.User) (UserRef, error) {
	names, err := t.displayNames(ctx, []model.User{*user})
	if err != nil {
		return UserRef{}, err
	}
	return UserRef{ID: user.ID, Username: user.Username, Name: names[user.ID]}, nil
}

// displayNames 优先使用组织内显示名，其次用户名称
func (t *Thread) displayNames(ctx context.Context, users []model.User) (map[uint]string, error) {
	out := make(map[uint]string, len(users))
	if len(users) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
		out[u.ID] = u.String()
	}
	var memberships []model.OrganizationMembership
	err := t.db.WithContext(ctx).
		Where("organization_id = ? AND user_id IN ?", t.OrganizationID, ids).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load organization memberships: %w", err)
	}
	for _, m := range memberships {
		if m.DisplayName != "" {
			out[m.UserID] = m.DisplayName
		}
	}
	return out, nil
}

func mergeUsers(lists ...[]model.User) []model.User {
	seen := make(map[uint]struct{})
	var out []model.User
	for _, list := range lists {
		for _, u := range list {
			if _, ok := seen[u.ID]; ok {
				continue
			}
			seen[u.ID] = struct{}{}
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
