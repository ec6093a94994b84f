package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/compliancetracker/compliancetracker/api/router"
	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/database"
	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/auth"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
	"github.com/compliancetracker/compliancetracker/pkg/ssh"
	"github.com/compliancetracker/compliancetracker/simulate"
	"github.com/compliancetracker/compliancetracker/web"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting Compliance Tracker Server", "version", "1.0.0", "site", cfg.RootURL())
	if cfg.Session.SecretGenerated {
		logger.Warn("session.secret not configured; generated a random secret, sessions end on restart")
	}

	// 初始化数据库
	if err := database.Init(cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()
	db := database.GetDB()

	// 创建服务
	var prober *ssh.Prober
	if cfg.Probe.DialTimeout > 0 {
		prober = ssh.NewProber(ssh.ProbeConfig{DialTimeout: cfg.Probe.DialTimeout, Username: cfg.Probe.Username})
	}
	accounts := service.NewAccountService(db)
	discussions := service.NewDiscussionService(db)
	notifications := service.NewNotificationService(db)
	itsystems := service.NewITSystemsService(db, prober)
	compliance := service.NewComplianceService(itsystems, cfg.AgentService, snapshotWriter(cfg))

	tmpl, err := web.Templates()
	if err != nil {
		logger.Fatal("Failed to parse templates", "error", err)
	}

	// 启动模拟服务（可选）
	sim := &simulator{path: cfg.Server.SimulatePath}
	if cfg.Server.SimulateEnable {
		sim.start()
	}
	defer sim.stop()

	// 设置路由
	mode := cfg.Server.Mode
	if cfg.Site.Debug && mode == "" {
		mode = "debug"
	}
	r := router.SetupRouter(router.Deps{
		Accounts:      accounts,
		Discussions:   discussions,
		Comments:      service.NewCommentService(db, discussions, notifications),
		Invitations:   service.NewInvitationService(db, discussions, notifications),
		Notifications: notifications,
		ITSystems:     itsystems,
		Compliance:    compliance,
		Tokens:        auth.NewTokenManager(cfg.Session.Secret, cfg.Session.TTL),
		Templates:     tmpl,
		CookieName:    cfg.Session.CookieName,
		SecureCookie:  cfg.Site.HTTPS,
		Mode:          mode,
	})

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 配置文件监听与热更新
	go watchFile(*configPath, func() {
		newCfg, err := config.Load(*configPath)
		if err != nil {
			logger.Warn("Config reload failed", "error", err)
			return
		}
		// 会话密钥与数据库连接不热更新
		newCfg.Session = cfg.Session
		newCfg.Database = cfg.Database
		*cfg = *newCfg
		_ = initLogger(cfg)
		compliance.Reload(cfg.AgentService, snapshotWriter(cfg))
		logger.Info("Config reloaded")

		sim.path = cfg.Server.SimulatePath
		if cfg.Server.SimulateEnable {
			sim.start()
		} else {
			sim.stop()
		}
	})

	// simulate.yaml 监听与热更新
	if cfg.Server.SimulateEnable {
		go watchFile(cfg.Server.SimulatePath, sim.reload)
	}

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	// 优雅关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
}

func snapshotWriter(cfg *config.Config) service.SnapshotWriter {
	if !cfg.Snapshot.Enabled {
		return nil
	}
	return service.NewSnapshotWriter(cfg)
}

// watchFile 监听文件变更，300ms 防抖后触发回调
func watchFile(path string, trigger func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("File watch init failed", "path", path, "error", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.Warn("File watch add failed", "path", path, "error", err)
		return
	}
	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(300*time.Millisecond, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("File watch error", "path", path, "error", err)
		}
	}
}

// simulator 内置 Wazuh 模拟服务的启停
type simulator struct {
	mu   sync.Mutex
	path string
	mgr  *simulate.Manager
}

func (s *simulator) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgr != nil {
		return
	}
	sc, err := simulate.LoadConfig(s.path)
	if err != nil {
		logger.Warn("Simulate: failed to load config", "path", s.path, "error", err)
		return
	}
	mgr, err := simulate.Start(sc)
	if err != nil {
		logger.Warn("Simulate: failed to start", "error", err)
		return
	}
	s.mgr = mgr
	names := make([]string, 0, len(sc.Manager))
	for name, mc := range sc.Manager {
		names = append(names, fmt.Sprintf("%s:%d", name, mc.Port))
	}
	sort.Strings(names)
	logger.Info("Simulate: managers enabled", "managers", strings.Join(names, ", "))
}

func (s *simulator) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgr == nil {
		return
	}
	sc, err := simulate.LoadConfig(s.path)
	if err != nil {
		logger.Warn("Simulate: reload failed", "error", err)
		return
	}
	s.mgr.Reload(sc)
	logger.Info("Simulate: hot reload success")
}

func (s *simulator) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgr != nil {
		s.mgr.Stop()
		s.mgr = nil
		logger.Info("Simulate: stopped")
	}
}
