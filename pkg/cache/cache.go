package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store 进程内 TTL 缓存，用于缓存上游接口响应
type Store struct {
	c   *gocache.Cache
	ttl time.Duration
}

// New 创建缓存；ttl<=0 时禁用缓存（Get 总是未命中）
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		return &Store{}
	}
	return &Store{c: gocache.New(ttl, ttl*2), ttl: ttl}
}

// Enabled 是否启用
func (s *Store) Enabled() bool {
	return s != nil && s.c != nil
}

// Get 读取缓存
func (s *Store) Get(key string) ([]byte, bool) {
	if !s.Enabled() {
		return nil, false
	}
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set 写入缓存（使用默认 TTL）
func (s *Store) Set(key string, value []byte) {
	if !s.Enabled() {
		return
	}
	s.c.Set(key, value, gocache.DefaultExpiration)
}

// Delete 删除缓存
func (s *Store) Delete(key string) {
	if !s.Enabled() {
		return
	}
	s.c.Delete(key)
}

// Flush 清空
func (s *Store) Flush() {
	if !s.Enabled() {
		return
	}
	s.c.Flush()
}

// Count 当前条目数
func (s *Store) Count() int {
	if !s.Enabled() {
		return 0
	}
	return s.c.ItemCount()
}

// Key 拼接缓存键
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
