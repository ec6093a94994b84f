package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/auth"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// AccountHandler 登录与登出
type AccountHandler struct {
	accounts   *service.AccountService
	tokens     *auth.TokenManager
	cookieName string
	secure     bool
}

// NewAccountHandler 创建账号处理器
func NewAccountHandler(accounts *service.AccountService, tokens *auth.TokenManager, cookieName string, secure bool) *AccountHandler {
	return &AccountHandler{accounts: accounts, tokens: tokens, cookieName: cookieName, secure: secure}
}

// LoginRequest 登录参数（表单或 JSON）
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required,max=150"`
	Password string `form:"password" json:"password" binding:"required"`
	Next     string `form:"next" json:"-"`
}

// LoginPage 登录页
func (h *AccountHandler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Next":  c.Query("next"),
		"Flash": popFlash(c),
	})
}

// Login 表单登录，成功后写入会话 cookie 并跳转
func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.HTML(http.StatusBadRequest, "login.html", gin.H{
			"Next":  req.Next,
			"Error": "Please enter a username and password.",
		})
		return
	}
	token, ok := h.issue(c, req)
	if !ok {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"Next":     req.Next,
			"Username": req.Username,
			"Error":    "The username and password were incorrect.",
		})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.tokens.TTL().Seconds()), "/", "", h.secure, true)
	c.Redirect(http.StatusFound, safeRedirect(req.Next, "/notifications"))
}

// LoginAPI JSON 登录，返回 Bearer 令牌
func (h *AccountHandler) LoginAPI(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "登录参数无效: "+err.Error())
		return
	}
	token, ok := h.issue(c, req)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "UNAUTHORIZED", Message: "用户名或密码错误"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "登录成功",
		Data: gin.H{
			"token":      token,
			"expires_in": int(h.tokens.TTL().Seconds()),
		},
	})
}

func (h *AccountHandler) issue(c *gin.Context, req LoginRequest) (string, bool) {
	user, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.Warn("Login failed", "username", req.Username, "client_ip", c.ClientIP(), "error", err)
		return "", false
	}
	token, err := h.tokens.Generate(user.ID, user.Username)
	if err != nil {
		logger.Error("Failed to sign session token", "user_id", user.ID, "error", err)
		return "", false
	}
	logger.Info("User logged in", "user_id", user.ID, "username", user.Username)
	return token, true
}

// Logout 清除会话
func (h *AccountHandler) Logout(c *gin.Context) {
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secure, true)
	c.Redirect(http.StatusFound, "/accounts/login")
}
