package agentsvc

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrUnsupported 未注册的监控服务类型
var ErrUnsupported = errors.New("agent service provider not supported")

// 上游接口端点
const (
	EndpointSCA      = "sca"
	EndpointPackages = "packages"
)

// Connection 访问监控服务 API 所需参数（来自 AgentService 记录与全局配置）
type Connection struct {
	Name       string
	RootPath   string
	User       string
	Password   string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	Debug      bool
}

// Summary 合规检查汇总
type Summary struct {
	PolicyName        string  `json:"policy_name,omitempty"`
	ChecksTotal       int     `json:"checks_total"`
	ChecksPass        int     `json:"checks_pass"`
	ChecksFail        int     `json:"checks_fail"`
	ChecksPassPercent float64 `json:"checks_pass_percent"`
	ChecksFailPercent float64 `json:"checks_fail_percent"`
}

// NewSummary 计算百分比（保留一位小数，总数为 0 时为 0）
func NewSummary(policy string, total, pass, fail int) Summary {
	return Summary{
		PolicyName:        policy,
		ChecksTotal:       total,
		ChecksPass:        pass,
		ChecksFail:        fail,
		ChecksPassPercent: percent(pass, total),
		ChecksFailPercent: percent(fail, total),
	}
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

// Provider 监控服务插件
type Provider interface {
	Name() string
	// Endpoints 合规报告需要拉取的端点
	Endpoints() []string
	// Fetch 拉取单个端点的原始 JSON
	Fetch(ctx context.Context, conn Connection, agentID, endpoint string) ([]byte, error)
	// Summarize 从各端点原始数据计算汇总
	Summarize(payloads map[string][]byte) (Summary, error)
	// Format 原始数据的展示格式
	Format(raw []byte) (string, error)
}
