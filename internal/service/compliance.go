package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/compliancetracker/compliancetracker/addone/agentsvc"
	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/util"
	"github.com/compliancetracker/compliancetracker/pkg/cache"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// ComplianceReport 主机合规报告
type ComplianceReport struct {
	HostInstance *model.HostInstance `json:"host_instance"`
	Agent        *model.Agent        `json:"agent"`
	AgentService string              `json:"agent_service,omitempty"`
	Available    bool                `json:"available"`
	agentsvc.Summary
	DataPretty     string         `json:"agent_service_data_pretty"`
	PackagesPretty string         `json:"agent_service_data_pkgs_pretty"`
	Snapshots      []StoredObject `json:"snapshots,omitempty"`
	FetchedAt      time.Time      `json:"fetched_at"`
}

// ComplianceService 从监控服务拉取主机合规数据
type ComplianceService struct {
	itsystems *ITSystemsService
	cfg       config.AgentServiceConfig
	cache     *cache.Store
	snapshots SnapshotWriter
	mu        sync.RWMutex
}

// NewComplianceService 创建合规服务；snapshots 为 nil 时不归档
func NewComplianceService(itsystems *ITSystemsService, cfg config.AgentServiceConfig, snapshots SnapshotWriter) *ComplianceService {
	return &ComplianceService{
		itsystems: itsystems,
		cfg:       cfg,
		cache:     cache.New(cfg.CacheTTL),
		snapshots: snapshots,
	}
}

// Reload 配置热更新
func (s *ComplianceService) Reload(cfg config.AgentServiceConfig, snapshots SnapshotWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.CacheTTL != s.cfg.CacheTTL {
		s.cache = cache.New(cfg.CacheTTL)
	}
	s.cfg = cfg
	s.snapshots = snapshots
}

func (s *ComplianceService) settings() (config.AgentServiceConfig, *cache.Store, SnapshotWriter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.cache, s.snapshots
}

// resolveService 代理绑定的服务，未绑定时按默认名称查找
func (s *ComplianceService) resolveService(ctx context.Context, agent *model.Agent, defaultName string) (*model.AgentService, error) {
	if agent != nil && agent.AgentService != nil {
		return agent.AgentService, nil
	}
	return s.itsystems.AgentServiceByName(ctx, defaultName)
}

// HostCompliance 拉取主机第一个代理的 SCA 汇总与软件包清单
// 没有可用的代理或监控服务时 Available 为 false，DataPretty 为提示文本
func (s *ComplianceService) HostCompliance(ctx context.Context, hostID uint) (*ComplianceReport, error) {
	cfg, store, snapshots := s.settings()

	host, err := s.itsystems.GetHost(ctx, hostID)
	if err != nil {
		return nil, err
	}
	host.Agents = nil
	report := &ComplianceReport{HostInstance: host, FetchedAt: time.Now()}

	agent, err := s.itsystems.FirstAgent(ctx, hostID)
	if err != nil {
		return nil, err
	}
	report.Agent = agent

	svc, err := s.resolveService(ctx, agent, cfg.DefaultName)
	if err != nil {
		return nil, err
	}
	if agent == nil || svc == nil || !agentsvc.Supported(svc.Provider) {
		report.DataPretty = ErrAgentServiceUndefined.Error()
		return report, nil
	}
	report.AgentService = svc.Name

	provider := agentsvc.Get(svc.Provider)
	conn := agentsvc.Connection{
		Name:       svc.Name,
		RootPath:   svc.APIRootPath,
		User:       svc.APIUser,
		Password:   svc.APIPw,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		RetryWait:  cfg.RetryWait,
		Debug:      cfg.Debug,
	}

	endpoints := provider.Endpoints()
	payloads := make([][]byte, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			raw, err := s.fetch(gctx, store, provider, conn, svc.ID, agent.AgentID, ep)
			if err != nil {
				return fmt.Errorf("%s %s: %w", svc.Name, ep, err)
			}
			payloads[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Agent service request failed", "host_instance_id", hostID, "agent_id", agent.AgentID, "error", err)
		return nil, err
	}

	byEndpoint := make(map[string][]byte, len(endpoints))
	for i, ep := range endpoints {
		byEndpoint[ep] = payloads[i]
	}
	summary, err := provider.Summarize(byEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize %s data: %w", svc.Name, err)
	}
	report.Summary = summary
	report.Available = true

	if report.DataPretty, err = provider.Format(byEndpoint[agentsvc.EndpointSCA]); err != nil {
		return nil, err
	}
	if raw, ok := byEndpoint[agentsvc.EndpointPackages]; ok {
		if report.PackagesPretty, err = provider.Format(raw); err != nil {
			return nil, err
		}
	}

	if snapshots != nil {
		for _, ep := range endpoints {
			obj, err := snapshots.Write(ctx, SnapshotMeta{
				Service:  svc.Name,
				HostName: host.Name,
				AgentID:  agent.AgentID,
				Endpoint: ep,
				Time:     report.FetchedAt,
			}, byEndpoint[ep])
			if err != nil {
				logger.Warn("Snapshot write failed", "host_instance_id", hostID, "endpoint", ep, "error", err)
				continue
			}
			report.Snapshots = append(report.Snapshots, obj)
		}
	}
	return report, nil
}

// fetch 优先读缓存，键为 (服务, 代理, 端点)
func (s *ComplianceService) fetch(ctx context.Context, store *cache.Store, p agentsvc.Provider, conn agentsvc.Connection, serviceID uint, agentID, endpoint string) ([]byte, error) {
	key := cache.Key(strconv.FormatUint(uint64(serviceID), 10), agentID, endpoint)
	if raw, ok := store.Get(key); ok {
		return raw, nil
	}
	raw, err := p.Fetch(ctx, conn, agentID, endpoint)
	if err != nil {
		if errors.Is(err, agentsvc.ErrUnsupported) {
			return nil, ErrAgentServiceUndefined
		}
		return nil, err
	}
	raw = []byte(util.EnsureUTF8Bytes(raw))
	store.Set(key, raw)
	return raw, nil
}

// InvalidateCache 清空上游响应缓存
func (s *ComplianceService) InvalidateCache() {
	_, store, _ := s.settings()
	store.Flush()
}
