package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.RWMutex
	log *logrus.Logger
)

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

// Init 初始化日志（可重复调用，用于配置热更新）
func Init(config Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:   "2006-01-02 15:04:05",
			DisableHTMLEscape: true,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	var writers []io.Writer
	if config.Output == "" || config.Output == "console" || config.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if config.Output == "file" || config.Output == "both" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	if len(writers) > 0 {
		l.SetOutput(io.MultiWriter(writers...))
	}

	mu.Lock()
	log = l
	mu.Unlock()
	return nil
}

// SetOutput 替换输出目标（测试用）
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// GetLogger 获取日志实例
func GetLogger() *logrus.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
	}
	return log
}

// entry 将 "key", value 成对参数转换为 logrus 字段
func entry(kv []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		fields["extra"] = kv[len(kv)-1]
	}
	return GetLogger().WithFields(fields)
}

// Debug 调试日志
func Debug(msg string, kv ...interface{}) {
	entry(kv).Debug(msg)
}

// Info 信息日志
func Info(msg string, kv ...interface{}) {
	entry(kv).Info(msg)
}

// Warn 警告日志
func Warn(msg string, kv ...interface{}) {
	entry(kv).Warn(msg)
}

// Error 错误日志
func Error(msg string, kv ...interface{}) {
	entry(kv).Error(msg)
}

// Fatal 致命错误日志
func Fatal(msg string, kv ...interface{}) {
	entry(kv).Fatal(msg)
}
