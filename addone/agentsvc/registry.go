package agentsvc

import (
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Provider{
		"default": &DefaultPlugin{},
	}
)

// Register 注册监控服务插件
func Register(name string, p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = p
}

// Get 获取插件，未注册时返回 default
func Get(name string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if p, ok := registry[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return registry["default"]
}

// Supported 是否已注册
func Supported(name string) bool {
	return Get(name).Name() != "default"
}
