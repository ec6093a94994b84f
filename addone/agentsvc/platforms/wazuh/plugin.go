package wazuh

import (
	"context"
	"errors"
	"fmt"

	"github.com/compliancetracker/compliancetracker/addone/agentsvc"
	"github.com/compliancetracker/compliancetracker/pkg/wazuh"
)

// Plugin Wazuh 监控服务插件
type Plugin struct{}

func (p *Plugin) Name() string { return "wazuh" }

func (p *Plugin) Endpoints() []string {
	return []string{agentsvc.EndpointSCA, agentsvc.EndpointPackages}
}

// Fetch 路由到具体端点
func (p *Plugin) Fetch(ctx context.Context, conn agentsvc.Connection, agentID, endpoint string) ([]byte, error) {
	client := wazuh.NewClient(wazuh.Options{
		RootPath:   conn.RootPath,
		User:       conn.User,
		Password:   conn.Password,
		Timeout:    conn.Timeout,
		RetryCount: conn.RetryCount,
		RetryWait:  conn.RetryWait,
		Debug:      conn.Debug,
	})
	switch endpoint {
	case agentsvc.EndpointSCA:
		return client.SCA(ctx, agentID)
	case agentsvc.EndpointPackages:
		return client.Packages(ctx, agentID)
	default:
		return nil, fmt.Errorf("wazuh endpoint %q: %w", endpoint, agentsvc.ErrUnsupported)
	}
}

// Summarize 取 SCA 第一个策略的检查数
func (p *Plugin) Summarize(payloads map[string][]byte) (agentsvc.Summary, error) {
	raw, ok := payloads[agentsvc.EndpointSCA]
	if !ok {
		return agentsvc.Summary{}, fmt.Errorf("missing sca payload")
	}
	policy, err := wazuh.FirstSCAPolicy(raw)
	if errors.Is(err, wazuh.ErrNoSCAData) {
		return agentsvc.NewSummary("", 0, 0, 0), nil
	}
	if err != nil {
		return agentsvc.Summary{}, err
	}
	return agentsvc.NewSummary(policy.Name, policy.TotalChecks, policy.Pass, policy.Fail), nil
}

func (p *Plugin) Format(raw []byte) (string, error) {
	return wazuh.PrettyJSON(raw)
}

func init() { agentsvc.Register("wazuh", &Plugin{}) }
