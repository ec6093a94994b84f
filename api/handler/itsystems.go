package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

const itsystemsPrefix = "/api/v1/itsystems"

// ITSystemsHandler 信息系统台账与主机合规
type ITSystemsHandler struct {
	svc        *service.ITSystemsService
	compliance *service.ComplianceService
}

// NewITSystemsHandler 创建台账处理器
func NewITSystemsHandler(svc *service.ITSystemsService, compliance *service.ComplianceService) *ITSystemsHandler {
	return &ITSystemsHandler{svc: svc, compliance: compliance}
}

// SystemRequest 创建信息系统
type SystemRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
}

// HostRequest 创建主机
type HostRequest struct {
	Name             string `json:"name" binding:"required,max=255"`
	SystemInstanceID uint   `json:"system_instance_id" binding:"required"`
	HostType         string `json:"host_type" binding:"max=64"`
	OS               string `json:"os" binding:"max=128"`
	Address          string `json:"address" binding:"omitempty,max=255"`
	SSHPort          int    `json:"ssh_port" binding:"omitempty,min=1,max=65535"`
}

// AgentRequest 创建代理
type AgentRequest struct {
	AgentID        string `json:"agent_id" binding:"required,max=64"`
	HostInstanceID uint   `json:"host_instance_id" binding:"required"`
	AgentServiceID *uint  `json:"agent_service_id"`
}

// ServiceRequest 创建监控服务或管控服务
type ServiceRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Provider    string `json:"provider" binding:"max=64"`
	APIUser     string `json:"api_user" binding:"max=255"`
	APIPw       string `json:"api_pw" binding:"max=255"`
	APIRootPath string `json:"api_root_path" binding:"max=255"`
}

// VendorRequest 创建厂商
type VendorRequest struct {
	Name    string `json:"name" binding:"required,max=255"`
	Website string `json:"website" binding:"omitempty,url"`
}

// ComponentRequest 创建组件
type ComponentRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	VendorID    *uint  `json:"vendor_id"`
	Version     string `json:"version" binding:"max=64"`
	Description string `json:"description"`
}

func systemHostsURL(systemID uint) string {
	return fmt.Sprintf("%s/systems/%d/hosts", itsystemsPrefix, systemID)
}

func created(c *gin.Context, location, message string, data interface{}) {
	c.Header("Location", location)
	c.JSON(http.StatusCreated, SuccessResponse{Code: "SUCCESS", Message: message, Data: data})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: message, Data: data})
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		logger.Warn("Invalid request body", "path", c.Request.URL.Path, "error", err)
		badRequest(c, "请求参数无效: "+err.Error())
		return false
	}
	return true
}

// CreateSystem 创建信息系统，Location 指向其主机列表
func (h *ITSystemsHandler) CreateSystem(c *gin.Context) {
	var req SystemRequest
	if !bindJSON(c, &req) {
		return
	}
	sys := &model.SystemInstance{Name: req.Name, Description: req.Description}
	if err := h.svc.CreateSystem(c.Request.Context(), sys); err != nil {
		respondError(c, err)
		return
	}
	created(c, systemHostsURL(sys.ID), "信息系统创建成功", sys)
}

// ListSystems 信息系统列表
func (h *ITSystemsHandler) ListSystems(c *gin.Context) {
	list, err := h.svc.ListSystems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取信息系统成功", list)
}

// GetSystem 信息系统详情
func (h *ITSystemsHandler) GetSystem(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	sys, err := h.svc.GetSystem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取信息系统成功", sys)
}

// DeleteSystem 删除信息系统
func (h *ITSystemsHandler) DeleteSystem(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.DeleteSystem(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "信息系统删除成功", nil)
}

// SystemHosts 信息系统下的主机
func (h *ITSystemsHandler) SystemHosts(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	hosts, err := h.svc.HostInstances(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取主机列表成功", hosts)
}

// CreateHost 创建主机，Location 指向所属系统的主机列表
func (h *ITSystemsHandler) CreateHost(c *gin.Context) {
	var req HostRequest
	if !bindJSON(c, &req) {
		return
	}
	host := &model.HostInstance{
		Name:             req.Name,
		SystemInstanceID: req.SystemInstanceID,
		HostType:         req.HostType,
		OS:               req.OS,
		Address:          req.Address,
		SSHPort:          req.SSHPort,
	}
	if err := h.svc.CreateHost(c.Request.Context(), host); err != nil {
		respondError(c, err)
		return
	}
	created(c, systemHostsURL(host.SystemInstanceID), "主机创建成功", host)
}

// ListHosts 全部主机
func (h *ITSystemsHandler) ListHosts(c *gin.Context) {
	hosts, err := h.svc.ListHosts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取主机列表成功", hosts)
}

// GetHost 主机详情
func (h *ITSystemsHandler) GetHost(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	host, err := h.svc.GetHost(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取主机成功", host)
}

// HostCompliance 主机合规报告
func (h *ITSystemsHandler) HostCompliance(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := h.compliance.HostCompliance(c.Request.Context(), id)
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusInternalServerError {
			// 上游监控服务异常
			logger.Error("Host compliance failed", "host_instance_id", id, "error", err)
			c.AbortWithStatusJSON(http.StatusBadGateway, ErrorResponse{Code: "UPSTREAM_ERROR", Message: err.Error()})
			return
		}
		c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
		return
	}
	respondOK(c, "获取合规数据成功", report)
}

// FlushComplianceCache 清空上游响应缓存
func (h *ITSystemsHandler) FlushComplianceCache(c *gin.Context) {
	h.compliance.InvalidateCache()
	respondOK(c, "缓存已清空", nil)
}

// ProbeHost SSH 探测主机
func (h *ITSystemsHandler) ProbeHost(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.ProbeHost(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "探测完成", res)
}

// CreateAgent 创建代理，Location 指向主机所属系统的主机列表
func (h *ITSystemsHandler) CreateAgent(c *gin.Context) {
	var req AgentRequest
	if !bindJSON(c, &req) {
		return
	}
	agent := &model.Agent{AgentID: req.AgentID, HostInstanceID: req.HostInstanceID, AgentServiceID: req.AgentServiceID}
	if err := h.svc.CreateAgent(c.Request.Context(), agent); err != nil {
		respondError(c, err)
		return
	}
	created(c, systemHostsURL(agent.HostInstance.SystemInstanceID), "代理创建成功", agent)
}

// ListAgents 代理列表
func (h *ITSystemsHandler) ListAgents(c *gin.Context) {
	list, err := h.svc.ListAgents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取代理列表成功", list)
}

// CreateAgentService 创建监控服务
func (h *ITSystemsHandler) CreateAgentService(c *gin.Context) {
	var req ServiceRequest
	if !bindJSON(c, &req) {
		return
	}
	svc := &model.AgentService{
		Name:        req.Name,
		Provider:    req.Provider,
		APIUser:     req.APIUser,
		APIPw:       req.APIPw,
		APIRootPath: req.APIRootPath,
	}
	if err := h.svc.CreateAgentService(c.Request.Context(), svc); err != nil {
		respondError(c, err)
		return
	}
	created(c, itsystemsPrefix+"/agent-services", "监控服务创建成功", svc)
}

// ListAgentServices 监控服务列表
func (h *ITSystemsHandler) ListAgentServices(c *gin.Context) {
	list, err := h.svc.ListAgentServices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取监控服务成功", list)
}

// CreateControlService 创建管控服务
func (h *ITSystemsHandler) CreateControlService(c *gin.Context) {
	var req ServiceRequest
	if !bindJSON(c, &req) {
		return
	}
	svc := &model.ControlService{
		Name:        req.Name,
		APIUser:     req.APIUser,
		APIPw:       req.APIPw,
		APIRootPath: req.APIRootPath,
	}
	if err := h.svc.CreateControlService(c.Request.Context(), svc); err != nil {
		respondError(c, err)
		return
	}
	created(c, itsystemsPrefix+"/control-services", "管控服务创建成功", svc)
}

// ListControlServices 管控服务列表
func (h *ITSystemsHandler) ListControlServices(c *gin.Context) {
	list, err := h.svc.ListControlServices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取管控服务成功", list)
}

// CreateVendor 创建厂商
func (h *ITSystemsHandler) CreateVendor(c *gin.Context) {
	var req VendorRequest
	if !bindJSON(c, &req) {
		return
	}
	v := &model.Vendor{Name: req.Name, Website: req.Website}
	if err := h.svc.CreateVendor(c.Request.Context(), v); err != nil {
		respondError(c, err)
		return
	}
	created(c, itsystemsPrefix+"/vendors", "厂商创建成功", v)
}

// ListVendors 厂商列表
func (h *ITSystemsHandler) ListVendors(c *gin.Context) {
	list, err := h.svc.ListVendors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取厂商成功", list)
}

// CreateComponent 创建组件，Location 指向组件列表
func (h *ITSystemsHandler) CreateComponent(c *gin.Context) {
	var req ComponentRequest
	if !bindJSON(c, &req) {
		return
	}
	comp := &model.Component{Name: req.Name, VendorID: req.VendorID, Version: req.Version, Description: req.Description}
	if err := h.svc.CreateComponent(c.Request.Context(), comp); err != nil {
		respondError(c, err)
		return
	}
	created(c, itsystemsPrefix+"/components", "组件创建成功", comp)
}

// ListComponents 组件列表
func (h *ITSystemsHandler) ListComponents(c *gin.Context) {
	list, err := h.svc.ListComponents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取组件成功", list)
}
