package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/database"
	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
	"github.com/compliancetracker/compliancetracker/pkg/ssh"
)

// ITSystemsService 信息系统、主机、代理、组件台账
type ITSystemsService struct {
	db     *gorm.DB
	prober *ssh.Prober
}

// NewITSystemsService 创建台账服务
func NewITSystemsService(db *gorm.DB, prober *ssh.Prober) *ITSystemsService {
	return &ITSystemsService{db: db, prober: prober}
}

func getByID[T any](ctx context.Context, db *gorm.DB, id uint, what string, preloads ...string) (*T, error) {
	var v T
	q := db.WithContext(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	err := q.First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func listAll[T any](ctx context.Context, db *gorm.DB, order string, preloads ...string) ([]T, error) {
	var list []T
	q := db.WithContext(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	if err := q.Order(order).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ensureUniqueName 同名记录已存在时返回 ErrConflict
func (s *ITSystemsService) ensureUniqueName(ctx context.Context, m interface{}, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalid)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(m).Where("name = ?", name).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("name %q already exists: %w", name, ErrConflict)
	}
	return nil
}

func (s *ITSystemsService) create(ctx context.Context, v interface{}) error {
	return database.TransactionWithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(v).Error
	}, 3, 50*time.Millisecond)
}

// CreateSystem 创建信息系统
func (s *ITSystemsService) CreateSystem(ctx context.Context, sys *model.SystemInstance) error {
	if err := s.ensureUniqueName(ctx, &model.SystemInstance{}, sys.Name); err != nil {
		return err
	}
	sys.Name = strings.TrimSpace(sys.Name)
	if err := s.create(ctx, sys); err != nil {
		return fmt.Errorf("failed to create system instance: %w", err)
	}
	logger.Info("System instance created", "id", sys.ID, "name", sys.Name)
	return nil
}

// ListSystems 信息系统列表
func (s *ITSystemsService) ListSystems(ctx context.Context) ([]model.SystemInstance, error) {
	return listAll[model.SystemInstance](ctx, s.db, "name")
}

// GetSystem 获取信息系统
func (s *ITSystemsService) GetSystem(ctx context.Context, id uint) (*model.SystemInstance, error) {
	return getByID[model.SystemInstance](ctx, s.db, id, "system instance")
}

// DeleteSystem 删除信息系统（其下仍有主机时拒绝）
func (s *ITSystemsService) DeleteSystem(ctx context.Context, id uint) error {
	if _, err := s.GetSystem(ctx, id); err != nil {
		return err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.HostInstance{}).Where("system_instance_id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("system instance %d still has %d hosts: %w", id, n, ErrConflict)
	}
	return s.db.WithContext(ctx).Delete(&model.SystemInstance{}, id).Error
}

// HostInstances 系统下的主机
func (s *ITSystemsService) HostInstances(ctx context.Context, systemID uint) ([]model.HostInstance, error) {
	if _, err := s.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}
	var hosts []model.HostInstance
	err := s.db.WithContext(ctx).
		Where("system_instance_id = ?", systemID).
		Order("name").
		Find(&hosts).Error
	return hosts, err
}

// CreateHost 创建主机
func (s *ITSystemsService) CreateHost(ctx context.Context, h *model.HostInstance) error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalid)
	}
	if _, err := s.GetSystem(ctx, h.SystemInstanceID); err != nil {
		return fmt.Errorf("system instance %d: %w", h.SystemInstanceID, ErrInvalid)
	}
	if h.SSHPort == 0 {
		h.SSHPort = 22
	}
	if err := s.create(ctx, h); err != nil {
		return fmt.Errorf("failed to create host instance: %w", err)
	}
	logger.Info("Host instance created", "id", h.ID, "system_instance_id", h.SystemInstanceID)
	return nil
}

// ListHosts 全部主机
func (s *ITSystemsService) ListHosts(ctx context.Context) ([]model.HostInstance, error) {
	return listAll[model.HostInstance](ctx, s.db, "name", "SystemInstance")
}

// GetHost 获取主机（含所属系统与代理）
func (s *ITSystemsService) GetHost(ctx context.Context, id uint) (*model.HostInstance, error) {
	return getByID[model.HostInstance](ctx, s.db, id, "host instance", "SystemInstance", "Agents", "Agents.AgentService")
}

// FirstAgent 主机的第一个代理；没有代理时返回 nil
func (s *ITSystemsService) FirstAgent(ctx context.Context, hostID uint) (*model.Agent, error) {
	var a model.Agent
	err := s.db.WithContext(ctx).Preload("AgentService").
		Where("host_instance_id = ?", hostID).
		Order("id").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAgent 创建代理
func (s *ITSystemsService) CreateAgent(ctx context.Context, a *model.Agent) error {
	a.AgentID = strings.TrimSpace(a.AgentID)
	if a.AgentID == "" {
		return fmt.Errorf("agent_id is required: %w", ErrInvalid)
	}
	host, err := s.GetHost(ctx, a.HostInstanceID)
	if err != nil {
		return fmt.Errorf("host instance %d: %w", a.HostInstanceID, ErrInvalid)
	}
	if a.AgentServiceID != nil {
		if _, err := getByID[model.AgentService](ctx, s.db, *a.AgentServiceID, "agent service"); err != nil {
			return fmt.Errorf("agent service %d: %w", *a.AgentServiceID, ErrInvalid)
		}
	}
	if err := s.create(ctx, a); err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	a.HostInstance = host
	logger.Info("Agent created", "id", a.ID, "agent_id", a.AgentID, "host_instance_id", a.HostInstanceID)
	return nil
}

// ListAgents 全部代理
func (s *ITSystemsService) ListAgents(ctx context.Context) ([]model.Agent, error) {
	return listAll[model.Agent](ctx, s.db, "id", "AgentService", "HostInstance")
}

// CreateAgentService 创建代理服务
func (s *ITSystemsService) CreateAgentService(ctx context.Context, svc *model.AgentService) error {
	if err := s.ensureUniqueName(ctx, &model.AgentService{}, svc.Name); err != nil {
		return err
	}
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Provider == "" {
		svc.Provider = "wazuh"
	}
	if err := s.create(ctx, svc); err != nil {
		return fmt.Errorf("failed to create agent service: %w", err)
	}
	return nil
}

// ListAgentServices 代理服务列表
func (s *ITSystemsService) ListAgentServices(ctx context.Context) ([]model.AgentService, error) {
	return listAll[model.AgentService](ctx, s.db, "name")
}

// AgentServiceByName 按名称查找代理服务；不存在返回 nil
func (s *ITSystemsService) AgentServiceByName(ctx context.Context, name string) (*model.AgentService, error) {
	var svc model.AgentService
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// CreateControlService 创建管控服务
func (s *ITSystemsService) CreateControlService(ctx context.Context, svc *model.ControlService) error {
	if err := s.ensureUniqueName(ctx, &model.ControlService{}, svc.Name); err != nil {
		return err
	}
	svc.Name = strings.TrimSpace(svc.Name)
	if err := s.create(ctx, svc); err != nil {
		return fmt.Errorf("failed to create control service: %w", err)
	}
	return nil
}

// ListControlServices 管控服务列表
func (s *ITSystemsService) ListControlServices(ctx context.Context) ([]model.ControlService, error) {
	return listAll[model.ControlService](ctx, s.db, "name")
}

// CreateVendor 创建厂商
func (s *ITSystemsService) CreateVendor(ctx context.Context, v *model.Vendor) error {
	if err := s.ensureUniqueName(ctx, &model.Vendor{}, v.Name); err != nil {
		return err
	}
	v.Name = strings.TrimSpace(v.Name)
	if err := s.create(ctx, v); err != nil {
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	return nil
}

// ListVendors 厂商列表
func (s *ITSystemsService) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	return listAll[model.Vendor](ctx, s.db, "name")
}

// CreateComponent 创建组件
func (s *ITSystemsService) CreateComponent(ctx context.Context, c *model.Component) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalid)
	}
	if c.VendorID != nil {
		if _, err := getByID[model.Vendor](ctx, s.db, *c.VendorID, "vendor"); err != nil {
			return fmt.Errorf("vendor %d: %w", *c.VendorID, ErrInvalid)
		}
	}
	if err := s.create(ctx, c); err != nil {
		return fmt.Errorf("failed to create component: %w", err)
	}
	return nil
}

// ListComponents 组件列表
func (s *ITSystemsService) ListComponents(ctx context.Context) ([]model.Component, error) {
	return listAll[model.Component](ctx, s.db, "name", "Vendor")
}

// ProbeHost SSH 探测主机可达性并记录主机公钥指纹
func (s *ITSystemsService) ProbeHost(ctx context.Context, id uint) (*ssh.ProbeResult, error) {
	host, err := s.GetHost(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(host.Address) == "" {
		return nil, fmt.Errorf("host instance %d has no address: %w", id, ErrInvalid)
	}
	if s.prober == nil {
		return nil, fmt.Errorf("ssh probe disabled: %w", ErrInvalid)
	}

	res, probeErr := s.prober.Probe(ctx, host.Address, host.SSHPort)
	now := time.Now()
	updates := map[string]interface{}{
		"reachable":     probeErr == nil && res.Reachable,
		"last_probe_at": &now,
	}
	if probeErr == nil {
		updates["host_key_fingerprint"] = res.Fingerprint
	} else {
		logger.Warn("Host probe failed", "host_instance_id", id, "address", res.Address, "error", probeErr)
	}
	if err := s.db.WithContext(ctx).Model(&model.HostInstance{ID: id}).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to store probe result: %w", err)
	}
	return res, nil
}
