package router

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/compliancetracker/compliancetracker/api/handler"
	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/auth"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// Deps 路由依赖
type Deps struct {
	Accounts      *service.AccountService
	Discussions   *service.DiscussionService
	Comments      *service.CommentService
	Invitations   *service.InvitationService
	Notifications *service.NotificationService
	ITSystems     *service.ITSystemsService
	Compliance    *service.ComplianceService
	Tokens        *auth.TokenManager
	Templates     *template.Template
	Health        *handler.HealthHandler
	CookieName    string
	SecureCookie  bool
	// Mode gin 运行模式：debug | release | test
	Mode string
}

// SetupRouter 设置路由
func SetupRouter(d Deps) *gin.Engine {
	mode := d.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	if d.Templates != nil {
		r.SetHTMLTemplate(d.Templates)
	}

	if err := handler.RegisterValidators(); err != nil {
		logger.Error("Failed to register validators", "error", err)
	}

	health := d.Health
	if health == nil {
		health = handler.NewHealthHandler()
	}
	accountHandler := handler.NewAccountHandler(d.Accounts, d.Tokens, d.CookieName, d.SecureCookie)
	discussionHandler := handler.NewDiscussionHandler(d.Discussions, d.Comments, d.Invitations)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)
	itsystemsHandler := handler.NewITSystemsHandler(d.ITSystems, d.Compliance)
	login := RequireLogin(d.Tokens, d.Accounts, d.CookieName)

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/notifications")
	})

	// 账号
	r.GET("/accounts/login", accountHandler.LoginPage)
	r.POST("/accounts/login", accountHandler.Login)
	r.GET("/accounts/logout", accountHandler.Logout)

	// 页面（需登录）
	pages := r.Group("/", login)
	{
		pages.GET("/discussions/:id", discussionHandler.View)
		pages.POST("/discussions/:id/comments", discussionHandler.PostComment)
		pages.POST("/discussions/:id/invite", discussionHandler.Invite)
		pages.POST("/comments/:id/edit", discussionHandler.EditComment)
		pages.POST("/comments/:id/delete", discussionHandler.DeleteComment)
		pages.POST("/comments/:id/react", discussionHandler.ReactComment)
		pages.GET("/invitations/accept/:token", discussionHandler.AcceptInvitation)
		pages.POST("/invitations/:id/revoke", discussionHandler.RevokeInvitation)
		pages.GET("/questions/:id/discussion", discussionHandler.QuestionDiscussion)
		pages.GET("/tasks/:id/questions/:key", discussionHandler.QuestionPage)
		pages.GET("/notifications", notificationHandler.List)
		pages.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		pages.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", health.Health)
		v1.POST("/accounts/login", accountHandler.LoginAPI)

		api := v1.Group("", login)

		discussions := api.Group("/discussions")
		{
			discussions.GET("/:id", discussionHandler.GetAPI)
			discussions.GET("/:id/autocompletes", discussionHandler.AutocompletesAPI)
			discussions.POST("/:id/comments", discussionHandler.PostCommentAPI)
		}

		api.GET("/notifications", notificationHandler.ListAPI)
		api.POST("/notifications/:id/read", notificationHandler.MarkReadAPI)

		its := api.Group("/itsystems")
		{
			its.GET("/systems", itsystemsHandler.ListSystems)
			its.POST("/systems", itsystemsHandler.CreateSystem)
			its.GET("/systems/:id", itsystemsHandler.GetSystem)
			its.DELETE("/systems/:id", itsystemsHandler.DeleteSystem)
			its.GET("/systems/:id/hosts", itsystemsHandler.SystemHosts)

			its.GET("/hosts", itsystemsHandler.ListHosts)
			its.POST("/hosts", itsystemsHandler.CreateHost)
			its.GET("/hosts/:id", itsystemsHandler.GetHost)
			its.GET("/hosts/:id/compliance", itsystemsHandler.HostCompliance)
			its.POST("/hosts/:id/probe", itsystemsHandler.ProbeHost)
			its.DELETE("/compliance/cache", itsystemsHandler.FlushComplianceCache)

			its.GET("/agents", itsystemsHandler.ListAgents)
			its.POST("/agents", itsystemsHandler.CreateAgent)
			its.GET("/agent-services", itsystemsHandler.ListAgentServices)
			its.POST("/agent-services", itsystemsHandler.CreateAgentService)
			its.GET("/control-services", itsystemsHandler.ListControlServices)
			its.POST("/control-services", itsystemsHandler.CreateControlService)
			its.GET("/vendors", itsystemsHandler.ListVendors)
			its.POST("/vendors", itsystemsHandler.CreateVendor)
			its.GET("/components", itsystemsHandler.ListComponents)
			its.POST("/components", itsystemsHandler.CreateComponent)
		}
	}

	// 404处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		requestID := c.GetString("request_id")
		method := c.Request.Method
		path := c.Request.URL.Path
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()

		logger.Info("HTTP Request",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", statusCode,
			"duration", duration,
			"client_ip", clientIP,
			"user_agent", c.Request.UserAgent(),
		)

		if statusCode >= http.StatusInternalServerError {
			logger.Error("HTTP Error",
				"request_id", requestID,
				"method", method,
				"path", path,
				"status", statusCode,
				"duration", duration,
				"client_ip", clientIP,
			)
		}
	}
}

// RequireLogin 登录校验：令牌来自会话 cookie 或 Authorization: Bearer
// 页面请求跳转到登录页，/api 请求返回 401；当前组织取 ?org=、org cookie 或第一个组织
func RequireLogin(tokens *auth.TokenManager, accounts *service.AccountService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token, _ = c.Cookie(cookieName)
		}
		if token == "" {
			unauthorized(c, "login required")
			return
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			unauthorized(c, "session expired or invalid")
			return
		}
		user, err := accounts.GetUser(c.Request.Context(), claims.UserID)
		if err != nil || !user.IsActive {
			unauthorized(c, "user no longer active")
			return
		}

		subdomain := c.Query("org")
		if subdomain == "" {
			subdomain, _ = c.Cookie("org")
		}
		org, err := accounts.CurrentOrganization(c.Request.Context(), user.ID, subdomain)
		if err != nil {
			if isAPI(c) {
				c.AbortWithStatusJSON(http.StatusForbidden, handler.ErrorResponse{Code: "FORBIDDEN", Message: err.Error()})
				return
			}
			c.String(http.StatusForbidden, "You are not a member of this organization.")
			c.Abort()
			return
		}
		handler.SetSession(c, user, org)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func isAPI(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}

func unauthorized(c *gin.Context, message string) {
	if isAPI(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ErrorResponse{Code: "UNAUTHORIZED", Message: message})
		return
	}
	c.Redirect(http.StatusFound, "/accounts/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}
