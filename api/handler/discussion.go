package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/service"
)

// DiscussionHandler 讨论、评论与邀请
type DiscussionHandler struct {
	discussions *service.DiscussionService
	comments    *service.CommentService
	invitations *service.InvitationService
}

// NewDiscussionHandler 创建讨论处理器
func NewDiscussionHandler(discussions *service.DiscussionService, comments *service.CommentService, invitations *service.InvitationService) *DiscussionHandler {
	return &DiscussionHandler{discussions: discussions, comments: comments, invitations: invitations}
}

// CommentForm 页面表单发表评论
type CommentForm struct {
	Text      string `form:"text" binding:"max=10000"`
	RepliesTo *uint  `form:"replies_to"`
	Emojis    string `form:"emojis" binding:"max=256"`
}

// CommentRequest JSON 发表评论
type CommentRequest struct {
	Text           string          `json:"text" binding:"max=10000"`
	RepliesTo      *uint           `json:"replies_to"`
	Emojis         []string        `json:"emojis" binding:"omitempty,emojis"`
	ProposedAnswer json.RawMessage `json:"proposed_answer"`
}

// EditForm 修改评论
type EditForm struct {
	Text string `form:"text" binding:"required,max=10000"`
}

// ReactForm 表情回应
type ReactForm struct {
	Emojis string `form:"emojis" binding:"max=256"`
}

// InviteForm 邀请访客
type InviteForm struct {
	ToUserID *uint  `form:"to_user_id"`
	ToEmail  string `form:"to_email" binding:"omitempty,email"`
	Text     string `form:"text" binding:"max=2000"`
}

// DiscussionPayload 讨论 JSON 表示
type DiscussionPayload struct {
	ID            uint                  `json:"id"`
	Title         string                `json:"title"`
	URL           string                `json:"url"`
	IsParticipant bool                  `json:"is_participant"`
	CanInvite     bool                  `json:"can_invite"`
	Comments      []service.CommentView `json:"comments"`
}

func discussionURL(id uint) string {
	return fmt.Sprintf("/discussions/%d", id)
}

func (h *DiscussionHandler) thread(c *gin.Context) (*service.Thread, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, service.ErrNotFound)
	}
	return h.discussions.Get(c.Request.Context(), CurrentOrg(c).ID, id)
}

func (h *DiscussionHandler) payload(c *gin.Context, th *service.Thread) (*DiscussionPayload, error) {
	ctx := c.Request.Context()
	user := CurrentUser(c)
	participant, err := th.IsParticipant(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	canInvite, err := th.CanInviteGuests(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	views, err := h.comments.List(ctx, th, user.ID)
	if err != nil {
		return nil, err
	}
	return &DiscussionPayload{
		ID:            th.ID,
		Title:         th.Title(),
		URL:           th.AbsoluteURL(),
		IsParticipant: participant,
		CanInvite:     canInvite,
		Comments:      views,
	}, nil
}

// View 讨论页
func (h *DiscussionHandler) View(c *gin.Context) {
	th, err := h.thread(c)
	if err != nil {
		renderError(c, err)
		return
	}
	p, err := h.payload(c, th)
	if err != nil {
		renderError(c, err)
		return
	}
	ac, err := th.Autocompletes(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "discussion.html", gin.H{
		"User":          CurrentUser(c),
		"Discussion":    p,
		"Autocompletes": ac["@"],
		"Flash":         popFlash(c),
	})
}

// PostComment 页面发表评论
func (h *DiscussionHandler) PostComment(c *gin.Context) {
	th, err := h.thread(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var form CommentForm
	if err := c.ShouldBind(&form); err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrInvalid))
		return
	}
	comment, err := h.comments.Post(c.Request.Context(), th, CurrentUser(c), service.PostCommentInput{
		Text:        form.Text,
		RepliesToID: form.RepliesTo,
		Emojis:      splitList(form.Emojis),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s#comment-%d", discussionURL(th.ID), comment.ID))
}

// EditComment 修改评论
func (h *DiscussionHandler) EditComment(c *gin.Context) {
	h.withComment(c, func(th *service.Thread, comment *model.Comment) error {
		var form EditForm
		if err := c.ShouldBind(&form); err != nil {
			return fmt.Errorf("%v: %w", err, service.ErrInvalid)
		}
		return h.comments.Edit(c.Request.Context(), th, comment, CurrentUser(c).ID, form.Text)
	})
}

// DeleteComment 删除评论
func (h *DiscussionHandler) DeleteComment(c *gin.Context) {
	h.withComment(c, func(th *service.Thread, comment *model.Comment) error {
		return h.comments.Delete(c.Request.Context(), th, comment, CurrentUser(c).ID)
	})
}

// ReactComment 表情回应
func (h *DiscussionHandler) ReactComment(c *gin.Context) {
	h.withComment(c, func(th *service.Thread, comment *model.Comment) error {
		var form ReactForm
		if err := c.ShouldBind(&form); err != nil {
			return fmt.Errorf("%v: %w", err, service.ErrInvalid)
		}
		_, err := h.comments.React(c.Request.Context(), th, comment, CurrentUser(c), splitList(form.Emojis))
		return err
	})
}

// withComment 解析评论所在讨论，执行操作后跳回讨论页
func (h *DiscussionHandler) withComment(c *gin.Context, fn func(th *service.Thread, comment *model.Comment) error) {
	id, err := paramID(c, "id")
	if err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrNotFound))
		return
	}
	comment, th, err := h.comments.Get(c.Request.Context(), CurrentOrg(c).ID, id)
	if err != nil {
		renderError(c, err)
		return
	}
	if err := fn(th, comment); err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusFound, discussionURL(th.ID))
}

// Invite 邀请访客加入讨论
func (h *DiscussionHandler) Invite(c *gin.Context) {
	th, err := h.thread(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var form InviteForm
	if err := c.ShouldBind(&form); err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrInvalid))
		return
	}
	inv, err := h.invitations.Invite(c.Request.Context(), th, CurrentUser(c), service.InviteInput{
		ToUserID: form.ToUserID,
		ToEmail:  form.ToEmail,
		Text:     form.Text,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	SetFlash(c, "Invitation sent. Acceptance link: /invitations/accept/"+inv.Token)
	c.Redirect(http.StatusFound, discussionURL(th.ID))
}

// AcceptInvitation 接受邀请后跳转到讨论所在页面
func (h *DiscussionHandler) AcceptInvitation(c *gin.Context) {
	var message string
	redirect, err := h.invitations.Accept(c.Request.Context(), c.Param("token"), CurrentUser(c), func(m string) { message = m })
	if err != nil {
		renderError(c, err)
		return
	}
	if message != "" {
		SetFlash(c, message)
	}
	c.Redirect(http.StatusFound, safeRedirect(redirect, "/notifications"))
}

// RevokeInvitation 撤销自己发出的邀请
func (h *DiscussionHandler) RevokeInvitation(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrNotFound))
		return
	}
	if err := h.invitations.Revoke(c.Request.Context(), id, CurrentUser(c).ID); err != nil {
		renderError(c, err)
		return
	}
	SetFlash(c, "Invitation revoked.")
	c.Redirect(http.StatusFound, safeRedirect(c.PostForm("next"), "/notifications"))
}

// QuestionDiscussion 获取或创建问题的讨论并跳转
func (h *DiscussionHandler) QuestionDiscussion(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrNotFound))
		return
	}
	th, err := h.discussions.ForQuestion(c.Request.Context(), CurrentOrg(c).ID, id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusFound, discussionURL(th.ID))
}

// QuestionPage 问题页面地址，跳转到问题讨论
func (h *DiscussionHandler) QuestionPage(c *gin.Context) {
	taskID, err := paramID(c, "id")
	if err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrNotFound))
		return
	}
	th, err := h.discussions.ForQuestionKey(c.Request.Context(), CurrentOrg(c).ID, taskID, c.Param("key"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusFound, discussionURL(th.ID))
}

// GetAPI 讨论及对当前用户可见的评论
func (h *DiscussionHandler) GetAPI(c *gin.Context) {
	th, err := h.thread(c)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := h.payload(c, th)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取讨论成功", Data: p})
}

// AutocompletesAPI 评论输入自动补全
func (h *DiscussionHandler) AutocompletesAPI(c *gin.Context) {
	th, err := h.thread(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ac, err := th.Autocompletes(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	var data interface{} = ac
	if len(ac) == 0 {
		// 非参与者返回空列表
		data = []service.AutocompleteItem{}
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取补全成功", Data: data})
}

// PostCommentAPI JSON 发表评论，返回渲染后的评论
func (h *DiscussionHandler) PostCommentAPI(c *gin.Context) {
	th, err := h.thread(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "评论参数无效: "+err.Error())
		return
	}
	user := CurrentUser(c)
	comment, err := h.comments.Post(c.Request.Context(), th, user, service.PostCommentInput{
		Text:           req.Text,
		RepliesToID:    req.RepliesTo,
		Emojis:         req.Emojis,
		ProposedAnswer: req.ProposedAnswer,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := h.comments.RenderContext(c.Request.Context(), th, comment, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1%s", discussionURL(th.ID)))
	c.JSON(http.StatusCreated, SuccessResponse{Code: "SUCCESS", Message: "评论发表成功", Data: view})
}
