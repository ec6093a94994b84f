package wazuh

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options 客户端参数
type Options struct {
	RootPath   string
	User       string
	Password   string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	Debug      bool
}

// Client Wazuh REST API 客户端（HTTP Basic 认证）
type Client struct {
	root   string
	client *resty.Client
}

// APIError 上游返回非 2xx
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("wazuh api returned status %d: %s", e.Status, body)
}

// NewClient 创建客户端
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetBasicAuth(opts.User, opts.Password).
		SetHeader("Accept", "application/json").
		SetDebug(opts.Debug)
	if opts.RetryCount > 0 {
		c.SetRetryCount(opts.RetryCount)
		if opts.RetryWait > 0 {
			c.SetRetryWaitTime(opts.RetryWait)
		}
	}
	return &Client{root: NormalizeRoot(opts.RootPath), client: c}
}

// NormalizeRoot 补全协议并去掉末尾斜杠，例如 "10.0.0.5:55000" -> "http://10.0.0.5:55000"
func NormalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return ""
	}
	if !strings.Contains(root, "://") {
		root = "http://" + root
	}
	return strings.TrimRight(root, "/")
}

// Root 接口根地址
func (c *Client) Root() string {
	return c.root
}

// SCA 获取代理的安全配置评估（SCA）结果原始 JSON
func (c *Client) SCA(ctx context.Context, agentID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/sca/%s/?pretty", url.PathEscape(agentID)))
}

// Packages 获取代理主机上已安装软件包原始 JSON
func (c *Client) Packages(ctx context.Context, agentID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/syscollector/%s/packages?pretty", url.PathEscape(agentID)))
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.root == "" {
		return nil, fmt.Errorf("wazuh api root path not configured")
	}
	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.root + path)
	if err != nil {
		return nil, fmt.Errorf("failed to call wazuh api: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return resp.Body(), nil
}
