package store

import (
	"sync"
	"time"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// ProfileCache 是画像的本地读缓存，采用 TTL + LRU 策略。
// 缓存的是画像拷贝，调用方拿到的对象可以随意修改。
type ProfileCache struct {
	mu              sync.Mutex
	entries         map[string]*cacheEntry
	maxSize         int
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	cleanupTicker   *time.Ticker
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

type cacheEntry struct {
	profile    *core.PreferenceProfile
	expireTime time.Time
	accessTime time.Time
}

// NewProfileCache 创建画像缓存。
func NewProfileCache(maxSize int, defaultTTL time.Duration) *ProfileCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	c := &ProfileCache{
		entries:         make(map[string]*cacheEntry),
		maxSize:         maxSize,
		defaultTTL:      defaultTTL,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	c.cleanupTicker = time.NewTicker(c.cleanupInterval)
	go c.cleanup()

	return c
}

func (c *ProfileCache) cleanup() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.cleanExpired()
		case <-c.stopCleanup:
			c.cleanupTicker.Stop()
			return
		}
	}
}

func (c *ProfileCache) cleanExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, e := range c.entries {
		if now.After(e.expireTime) {
			delete(c.entries, userID)
		}
	}
	for len(c.entries) > c.maxSize {
		c.evictLRU()
	}
}

// evictLRU 删除最久未访问的条目，调用方持有锁。
func (c *ProfileCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range c.entries {
		if first || e.accessTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.accessTime
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Get 读取缓存的画像拷贝。
func (c *ProfileCache) Get(userID string) (*core.PreferenceProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	now := c.now()
	if !ok || now.After(e.expireTime) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	e.accessTime = now
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.profile.Clone(), true
}

// Set 写入画像拷贝，ttl <= 0 时使用默认 TTL。
func (c *ProfileCache) Set(p *core.PreferenceProfile, ttl time.Duration) {
	if p == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[p.UserID]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	now := c.now()
	c.entries[p.UserID] = &cacheEntry{
		profile:    p.Clone(),
		expireTime: now.Add(ttl),
		accessTime: now,
	}
}

// Invalidate 删除某个用户的缓存。
func (c *ProfileCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Len 返回当前条目数（含未清理的过期条目）。
func (c *ProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear 清空缓存。
func (c *ProfileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Close 停止清理协程，可重复调用。
func (c *ProfileCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}
