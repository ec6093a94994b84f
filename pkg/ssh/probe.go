package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// errHostKeyCaptured 拿到主机公钥后主动中断握手，不做认证
var errHostKeyCaptured = errors.New("host key captured")

// ProbeConfig 探测参数
type ProbeConfig struct {
	DialTimeout time.Duration
	Username    string
}

// ProbeResult 探测结果
type ProbeResult struct {
	Address     string        `json:"address"`
	Reachable   bool          `json:"reachable"`
	KeyType     string        `json:"key_type,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Latency     time.Duration `json:"latency"`
}

// Prober SSH 可达性探测：完成密钥交换并记录主机公钥指纹
type Prober struct {
	config ProbeConfig
}

// NewProber 创建探测器
func NewProber(cfg ProbeConfig) *Prober {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Username == "" {
		cfg.Username = "probe"
	}
	return &Prober{config: cfg}
}

// Probe 探测 host:port；返回错误表示不可达或握手失败
func (p *Prober) Probe(ctx context.Context, host string, port int) (*ProbeResult, error) {
	if port <= 0 {
		port = 22
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	result := &ProbeResult{Address: address}

	var hostKey ssh.PublicKey
	sshConfig := &ssh.ClientConfig{
		User: p.config.Username,
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			hostKey = key
			return errHostKeyCaptured
		},
		Timeout: p.config.DialTimeout,
	}

	start := time.Now()
	dialer := &net.Dialer{Timeout: p.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return result, fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(p.config.DialTimeout))
	}

	_, _, _, err = ssh.NewClientConn(conn, address, sshConfig)
	result.Latency = time.Since(start)
	if hostKey == nil {
		if err == nil {
			err = errors.New("no host key presented")
		}
		return result, fmt.Errorf("ssh handshake failed: %w", err)
	}

	result.Reachable = true
	result.KeyType = hostKey.Type()
	result.Fingerprint = ssh.FingerprintSHA256(hostKey)
	return result, nil
}
