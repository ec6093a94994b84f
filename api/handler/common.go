package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	ctxUserKey = "current_user"
	ctxOrgKey  = "current_org"

	flashCookie = "ctrack_flash"
)

// SetSession 登录中间件写入当前用户与组织
func SetSession(c *gin.Context, user *model.User, org *model.Organization) {
	c.Set(ctxUserKey, user)
	c.Set(ctxOrgKey, org)
}

// CurrentUser 当前登录用户
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ctxUserKey); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

// CurrentOrg 当前组织
func CurrentOrg(c *gin.Context) *model.Organization {
	if v, ok := c.Get(ctxOrgKey); ok {
		if o, ok := v.(*model.Organization); ok {
			return o
		}
	}
	return nil
}

// errorStatus 服务层错误到 HTTP 状态码与错误码
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, service.ErrInvalid):
		return http.StatusBadRequest, "INVALID_PARAMS"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, service.ErrCommentDeleted):
		return http.StatusGone, "COMMENT_DELETED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondError JSON 错误响应
func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "request_id", c.GetString("request_id"), "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
}

// renderError HTML 错误页
func renderError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "request_id", c.GetString("request_id"), "path", c.Request.URL.Path, "error", err)
		message = "Internal server error."
	}
	c.HTML(status, "error.html", gin.H{
		"Status":  status,
		"Code":    code,
		"Message": message,
		"User":    CurrentUser(c),
	})
	c.Abort()
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: message})
}

// paramID 解析路径中的数字 ID
func paramID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name + ": " + c.Param(name))
	}
	return uint(id), nil
}

// splitList 逗号分隔的表单字段
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SetFlash 下一次页面渲染时显示的提示
func SetFlash(c *gin.Context, message string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, url.QueryEscape(message), 60, "/", "", false, true)
}

// popFlash 读取并清除提示
func popFlash(c *gin.Context) string {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return ""
	}
	c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	msg, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	return msg
}

// safeRedirect 只允许站内相对路径
func safeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return fallback
	}
	return next
}
