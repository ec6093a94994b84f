package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Site         SiteConfig         `mapstructure:"site"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Session      SessionConfig      `mapstructure:"session"`
	AgentService AgentServiceConfig `mapstructure:"agent_service"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Probe        ProbeConfig        `mapstructure:"probe"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SimulateEnable bool          `mapstructure:"simulate_enable"`
	SimulatePath   string        `mapstructure:"simulate_path"`
}

// SiteConfig 站点配置（对外访问地址、https 与调试开关）
type SiteConfig struct {
	Host  string `mapstructure:"host"`
	HTTPS bool   `mapstructure:"https"`
	Debug bool   `mapstructure:"debug"`
}

// DatabaseConfig 数据库配置
// Driver: sqlite | mysql | postgres；DSN 非空时优先使用
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	// LogLevel gorm 日志级别：silent | error | warn | info
	LogLevel string `mapstructure:"log_level"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SessionConfig 登录会话配置
type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	// SecretGenerated 未配置 secret 时启动随机生成，重启后会话失效
	SecretGenerated bool `mapstructure:"-"`
}

// AgentServiceConfig 监控服务（Wazuh 等）调用配置
type AgentServiceConfig struct {
	// DefaultName 主机代理未绑定服务时回退查找的服务名
	DefaultName string        `mapstructure:"default_name"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	Debug       bool          `mapstructure:"debug"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置（快照归档）
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// SnapshotConfig 监控数据快照归档配置
type SnapshotConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend 存储后端：local | minio
	Backend string              `mapstructure:"backend"`
	Prefix  string              `mapstructure:"prefix"`
	Local   LocalSnapshotConfig `mapstructure:"local"`
}

// LocalSnapshotConfig 本地快照目录
type LocalSnapshotConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// ProbeConfig 主机 SSH 连通性探测配置
type ProbeConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

var globalConfig *Config

// Load 加载配置文件
// 配置文件缺失时使用默认值启动（与 .env / 环境变量叠加）
func Load(configPath string) (*Config, error) {
	// 本地 .env 仅补充未设置的环境变量
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("CTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Session.Secret) == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.Session.Secret = secret
		cfg.Session.SecretGenerated = true
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.simulate_enable", false)
	v.SetDefault("server.simulate_path", "simulate/simulate.yaml")

	v.SetDefault("site.host", "localhost:8000")
	v.SetDefault("site.https", false)
	v.SetDefault("site.debug", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "./local/db.sqlite3")
	v.SetDefault("database.sqlite.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", "ctrack_session")
	v.SetDefault("session.ttl", 14*24*time.Hour)

	v.SetDefault("agent_service.default_name", "Wazuh")
	v.SetDefault("agent_service.timeout", 15*time.Second)
	v.SetDefault("agent_service.retry_count", 1)
	v.SetDefault("agent_service.retry_wait", time.Second)
	v.SetDefault("agent_service.cache_ttl", 2*time.Minute)

	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.backend", "local")
	v.SetDefault("snapshot.prefix", "agent-service")
	v.SetDefault("snapshot.local.base_dir", "./local/snapshots")
	v.SetDefault("snapshot.local.mkdir_if_missing", true)

	v.SetDefault("probe.dial_timeout", 5*time.Second)
	v.SetDefault("probe.username", "probe")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./local/logs/server.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && strings.TrimSpace(c.Database.SQLite.Path) == "" && c.Database.DSN == "" {
		return fmt.Errorf("database.sqlite.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Snapshot.Backend) {
	case "", "local", "minio":
	default:
		return fmt.Errorf("unsupported snapshot backend: %q", c.Snapshot.Backend)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RootURL 站点根地址，例如 http://localhost:8000
func (c *Config) RootURL() string {
	scheme := "http"
	if c.Site.HTTPS {
		scheme = "https"
	}
	return scheme + "://" + c.Site.Host
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
