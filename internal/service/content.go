package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/model"
)

// 可挂载讨论的内容类型
const (
	ContentTypeTaskQuestion = "task_question"
	ContentTypeTask         = "task"
)

// Attachable 讨论可挂载的对象
type Attachable interface {
	ContentType() string
	ObjectID() uint
	Title() string
	AbsoluteURL() string
	// Task 对象所属任务，可能为 nil
	Task() *model.Task
	ProjectID() uint
}

// ContentLoader 按主键加载对象；记录不存在时返回 (nil, nil)
type ContentLoader func(ctx context.Context, db *gorm.DB, id uint) (Attachable, error)

var (
	contentMu    sync.RWMutex
	contentTypes = map[string]ContentLoader{}
)

// RegisterContentType 注册内容类型加载器
func RegisterContentType(name string, loader ContentLoader) {
	contentMu.Lock()
	defer contentMu.Unlock()
	contentTypes[name] = loader
}

// LoadAttachable 解析内容类型并加载对象；对象已被删除时返回 (nil, nil)
func LoadAttachable(ctx context.Context, db *gorm.DB, contentType string, id uint) (Attachable, error) {
	contentMu.RLock()
	loader, ok := contentTypes[contentType]
	contentMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown content type %q: %w", contentType, ErrInvalid)
	}
	return loader(ctx, db, id)
}

// QuestionTarget 任务问题
type QuestionTarget struct {
	Question *model.TaskQuestion
}

// NewQuestionTarget 包装问题；Question.Task 需已加载
func NewQuestionTarget(q *model.TaskQuestion) *QuestionTarget {
	return &QuestionTarget{Question: q}
}

func (q *QuestionTarget) ContentType() string { return ContentTypeTaskQuestion }
func (q *QuestionTarget) ObjectID() uint      { return q.Question.ID }
func (q *QuestionTarget) Title() string       { return q.Question.Title }
func (q *QuestionTarget) AbsoluteURL() string { return q.Question.AbsoluteURL() }
func (q *QuestionTarget) Task() *model.Task   { return q.Question.Task }

func (q *QuestionTarget) ProjectID() uint {
	if q.Question.Task == nil {
		return 0
	}
	return q.Question.Task.ProjectID
}

// TaskTarget 任务本身
type TaskTarget struct {
	T *model.Task
}

func (t *TaskTarget) ContentType() string { return ContentTypeTask }
func (t *TaskTarget) ObjectID() uint      { return t.T.ID }
func (t *TaskTarget) Title() string       { return t.T.Title }
func (t *TaskTarget) AbsoluteURL() string { return t.T.AbsoluteURL() }
func (t *TaskTarget) Task() *model.Task   { return t.T }
func (t *TaskTarget) ProjectID() uint     { return t.T.ProjectID }

func loadQuestion(ctx context.Context, db *gorm.DB, id uint) (Attachable, error) {
	var q model.TaskQuestion
	if err := db.WithContext(ctx).Preload("Task").First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return NewQuestionTarget(&q), nil
}

func loadTask(ctx context.Context, db *gorm.DB, id uint) (Attachable, error) {
	var t model.Task
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &TaskTarget{T: &t}, nil
}

func init() {
	RegisterContentType(ContentTypeTaskQuestion, loadQuestion)
	RegisterContentType(ContentTypeTask, loadTask)
}
