package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

var db *gorm.DB

// Init 初始化全局数据库连接并自动迁移
func Init(cfg config.DatabaseConfig) error {
	conn, err := Open(cfg)
	if err != nil {
		return err
	}
	db = conn
	logger.Info("Database initialized successfully", "driver", cfg.Driver)
	return nil
}

// Open 按驱动打开数据库连接并执行自动迁移
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormLogger.New(
			logger.GetLogger(),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  parseLogLevel(cfg.LogLevel),
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		conn, err = openSQLite(cfg, gormConfig)
	case "mysql":
		conn, err = gorm.Open(mysql.Open(mysqlDSN(cfg)), gormConfig)
	case "postgres":
		conn, err = gorm.Open(postgres.Open(postgresDSN(cfg)), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(conn); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return conn, nil
}

func openSQLite(cfg config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		path := cfg.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(15000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	}
	// SQLite 默认对每次写操作开启事务，容易放大锁争用
	gormConfig.SkipDefaultTransaction = true

	conn, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// 单连接，确保 PRAGMA 在唯一连接上生效
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(cfg.SQLite.ConnMaxLifetime)

	_ = conn.Exec("PRAGMA busy_timeout=15000;").Error
	_ = conn.Exec("PRAGMA foreign_keys=ON;").Error
	return conn, nil
}

func mysqlDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	m := cfg.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

func postgresDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	p := cfg.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		p.Host, p.Port, p.Username, p.Password, p.Database, p.SSLMode)
}

func parseLogLevel(level string) gormLogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormLogger.Silent
	case "error":
		return gormLogger.Error
	case "info":
		return gormLogger.Info
	default:
		return gormLogger.Warn
	}
}

// AutoMigrate 自动迁移数据库表
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&model.Organization{},
		&model.User{},
		&model.OrganizationMembership{},
		&model.Project{},
		&model.ProjectMembership{},
		&model.Task{},
		&model.TaskQuestion{},
		&model.Discussion{},
		&model.Comment{},
		&model.Invitation{},
		&model.Notification{},
		&model.SystemInstance{},
		&model.HostInstance{},
		&model.AgentService{},
		&model.ControlService{},
		&model.Agent{},
		&model.Vendor{},
		&model.Component{},
	)
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// IsBusyError 判断是否为 SQLite 并发锁相关错误
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "cannot start a transaction within a transaction")
}

// TransactionWithRetry 在事务级别检测并发锁错误并重试
func TransactionWithRetry(conn *gorm.DB, fn func(*gorm.DB) error, attempts int, sleep time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	if sleep <= 0 {
		sleep = 50 * time.Millisecond
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = conn.Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsBusyError(err) {
			return err
		}
		time.Sleep(sleep)
		if sleep < 500*time.Millisecond {
			sleep *= 2
		}
	}
	return err
}

// Close 关闭数据库连接
func Close() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func Health() error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetStats 获取数据库统计信息
func GetStats() map[string]interface{} {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
	}
}
