package simulate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/compliancetracker/compliancetracker/pkg/logger"
	"github.com/compliancetracker/compliancetracker/pkg/wazuh"
)

// Config simulate.yaml 配置结构
// 每个 manager 在独立端口模拟一个 Wazuh API，agent 数据完全来自配置
type Config struct {
	Manager map[string]ManagerConfig `mapstructure:"manager"`
}

// ManagerConfig 单个模拟 Wazuh manager
type ManagerConfig struct {
	Port     int                    `mapstructure:"port"`
	User     string                 `mapstructure:"user"`
	Password string                 `mapstructure:"password"`
	Latency  time.Duration          `mapstructure:"latency"`
	Agents   map[string]AgentConfig `mapstructure:"agents"`
}

// AgentConfig 单个 agent 的 SCA 与软件包数据
type AgentConfig struct {
	Policies []PolicyConfig  `mapstructure:"policies"`
	Packages []PackageConfig `mapstructure:"packages"`
}

// PolicyConfig SCA 策略检查结果；total_checks 与 score 缺省时按 pass/fail 计算
type PolicyConfig struct {
	PolicyID    string `mapstructure:"policy_id"`
	Name        string `mapstructure:"name"`
	TotalChecks int    `mapstructure:"total_checks"`
	Pass        int    `mapstructure:"pass"`
	Fail        int    `mapstructure:"fail"`
	Invalid     int    `mapstructure:"invalid"`
	Score       int    `mapstructure:"score"`
}

// PackageConfig 软件包
type PackageConfig struct {
	Name         string `mapstructure:"name"`
	Version      string `mapstructure:"version"`
	Architecture string `mapstructure:"architecture"`
	Vendor       string `mapstructure:"vendor"`
	Format       string `mapstructure:"format"`
}

// Manager 管理多个模拟 Wazuh manager，互不影响
type Manager struct {
	cfg     *Config
	servers map[string]*managerServer
	mu      sync.Mutex
}

type managerServer struct {
	name     string
	listener net.Listener
	srv      *http.Server

	mu  sync.RWMutex
	cfg ManagerConfig
}

// LoadConfig 读取 simulate/simulate.yaml
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	return &cfg, nil
}

// Start 启动所有模拟 manager；单个启动失败只记录日志
func Start(simCfg *Config) (*Manager, error) {
	if simCfg == nil {
		return nil, errors.New("simulate config is nil")
	}
	m := &Manager{cfg: simCfg, servers: make(map[string]*managerServer)}
	for name, mc := range simCfg.Manager {
		srv, err := startManager(name, mc)
		if err != nil {
			logger.Error("Simulate: start manager failed", "manager", name, "port", mc.Port, "error", err)
			continue
		}
		m.servers[name] = srv
		logger.Info("Simulate: manager started", "manager", name, "addr", srv.Addr(), "agents", len(mc.Agents))
	}
	return m, nil
}

// Addr 返回 manager 的监听地址
func (m *Manager) Addr(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.servers[name]; ok {
		return s.Addr()
	}
	return ""
}

// Reload 热更新 agent 数据与认证信息；端口变化需重启
func (m *Manager) Reload(simCfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, mc := range simCfg.Manager {
		if s, ok := m.servers[name]; ok {
			s.mu.Lock()
			if mc.Port != s.cfg.Port {
				logger.Warn("Simulate: port change ignored until restart", "manager", name, "port", mc.Port)
				mc.Port = s.cfg.Port
			}
			s.cfg = mc
			s.mu.Unlock()
			continue
		}
		srv, err := startManager(name, mc)
		if err != nil {
			logger.Error("Simulate: start manager failed", "manager", name, "error", err)
			continue
		}
		m.servers[name] = srv
	}
	for name, s := range m.servers {
		if _, ok := simCfg.Manager[name]; !ok {
			s.stop()
			delete(m.servers, name)
			logger.Info("Simulate: manager removed", "manager", name)
		}
	}
	m.cfg = simCfg
}

// Stop 停止所有模拟服务
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.servers {
		s.stop()
		logger.Info("Simulate: manager stopped", "manager", name)
	}
	m.servers = map[string]*managerServer{}
}

func startManager(name string, mc ManagerConfig) (*managerServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", mc.Port))
	if err != nil {
		return nil, err
	}
	s := &managerServer{name: name, listener: ln, cfg: mc}
	s.srv = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Simulate: serve failed", "manager", name, "error", err)
		}
	}()
	return s, nil
}

func (s *managerServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *managerServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (s *managerServer) snapshot() ManagerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *managerServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.auth())
	r.GET("/sca/:agent/", s.sca)
	r.GET("/syscollector/:agent/packages", s.packages)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"title": "Not Found", "detail": "unknown endpoint", "error": 404})
	})
	return r
}

func (s *managerServer) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := s.snapshot()
		if cfg.Latency > 0 {
			time.Sleep(cfg.Latency)
		}
		user, pw, ok := c.Request.BasicAuth()
		if cfg.User != "" && (!ok || user != cfg.User || pw != cfg.Password) {
			logger.Debug("Simulate: rejected credentials", "manager", s.name, "user", user)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"title":  "Unauthorized",
				"detail": "Invalid credentials",
				"error":  401,
			})
			return
		}
		c.Next()
	}
}

func (s *managerServer) agent(c *gin.Context) (AgentConfig, bool) {
	a, ok := s.snapshot().Agents[c.Param("agent")]
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"error": 1,
			"data":  gin.H{"items": []interface{}{}, "total_affected_items": 0, "failed_items": []string{c.Param("agent")}},
		})
	}
	return a, ok
}

func (s *managerServer) sca(c *gin.Context) {
	a, ok := s.agent(c)
	if !ok {
		return
	}
	var resp wazuh.SCAResponse
	resp.Data.Items = make([]wazuh.SCAPolicy, 0, len(a.Policies))
	for _, p := range a.Policies {
		item := wazuh.SCAPolicy{
			PolicyID:    p.PolicyID,
			Name:        p.Name,
			TotalChecks: p.TotalChecks,
			Pass:        p.Pass,
			Fail:        p.Fail,
			Invalid:     p.Invalid,
			Score:       p.Score,
		}
		if item.TotalChecks == 0 {
			item.TotalChecks = p.Pass + p.Fail + p.Invalid
		}
		if item.Score == 0 && p.Pass+p.Fail > 0 {
			item.Score = p.Pass * 100 / (p.Pass + p.Fail)
		}
		resp.Data.Items = append(resp.Data.Items, item)
	}
	resp.Data.TotalAffectedItems = len(resp.Data.Items)
	resp.Data.TotalItems = len(resp.Data.Items)
	c.JSON(http.StatusOK, resp)
}

func (s *managerServer) packages(c *gin.Context) {
	a, ok := s.agent(c)
	if !ok {
		return
	}
	var resp wazuh.PackagesResponse
	resp.Data.Items = make([]wazuh.Package, 0, len(a.Packages))
	for _, p := range a.Packages {
		resp.Data.Items = append(resp.Data.Items, wazuh.Package(p))
	}
	sort.Slice(resp.Data.Items, func(i, j int) bool { return resp.Data.Items[i].Name < resp.Data.Items[j].Name })
	resp.Data.TotalAffectedItems = len(resp.Data.Items)
	resp.Data.TotalItems = len(resp.Data.Items)
	c.JSON(http.StatusOK, resp)
}
