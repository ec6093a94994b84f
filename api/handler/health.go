package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compliancetracker/compliancetracker/internal/database"
)

// HealthHandler 健康检查
type HealthHandler struct {
	check   func() error
	stats   func() map[string]interface{}
	started time.Time
}

// NewHealthHandler 基于全局数据库连接创建健康检查
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{check: database.Health, stats: database.GetStats, started: time.Now()}
}

// Health 数据库可用时返回 200
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.check(); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "数据库不可用: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "服务正常",
		Data: gin.H{
			"database": h.stats(),
			"uptime":   time.Since(h.started).Round(time.Second).String(),
		},
	})
}
