package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/compliancetracker/compliancetracker/internal/service"
)

// NotificationHandler 站内通知
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func listLimit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

// List 通知页
func (h *NotificationHandler) List(c *gin.Context) {
	user := CurrentUser(c)
	list, err := h.notifications.List(c.Request.Context(), user.ID, c.Query("unread") == "1", listLimit(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "notifications.html", gin.H{
		"User":          user,
		"Organization":  CurrentOrg(c),
		"Notifications": list,
		"Flash":         popFlash(c),
	})
}

// MarkRead 标记单条已读并跳转到通知链接
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		renderError(c, fmt.Errorf("%v: %w", err, service.ErrNotFound))
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), CurrentUser(c).ID, id); err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusFound, safeRedirect(c.PostForm("next"), "/notifications"))
}

// MarkAllRead 全部标记已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if _, err := h.notifications.MarkAllRead(c.Request.Context(), CurrentUser(c).ID); err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/notifications")
}

// ListAPI 通知列表与未读数
func (h *NotificationHandler) ListAPI(c *gin.Context) {
	user := CurrentUser(c)
	ctx := c.Request.Context()
	list, err := h.notifications.List(ctx, user.ID, c.Query("unread") == "1", listLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "获取通知成功",
		Data: gin.H{
			"unread_count":  unread,
			"notifications": list,
		},
	})
}

// MarkReadAPI 标记单条已读
func (h *NotificationHandler) MarkReadAPI(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), CurrentUser(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "已标记为已读"})
}
