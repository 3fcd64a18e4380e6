package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rushteam/searchkit/core"
)

// DefaultProfileKeyPrefix 是画像的默认 key 前缀：{prefix}{userID}。
const DefaultProfileKeyPrefix = "pref:user:"

// ProfileStore 是基于 core.KeyValueStore 的偏好画像存储，实现 core.PreferenceStore。
//
// 画像以 JSON 文档整体存储，一用户一 key；Update 在用户锁内完成读-改-写，
// 同一用户的并发事件不会丢失增量。
type ProfileStore struct {
	kv     core.KeyValueStore
	locker core.Locker
	cache  *ProfileCache

	// KeyPrefix 是画像 key 前缀
	KeyPrefix string
	// CacheTTL 是缓存条目的 TTL，<= 0 时使用缓存默认值
	CacheTTL time.Duration

	now func() time.Time
}

// ProfileStoreOption 配置 ProfileStore。
type ProfileStoreOption func(*ProfileStore)

// WithCache 注入读缓存。
func WithCache(c *ProfileCache) ProfileStoreOption {
	return func(s *ProfileStore) { s.cache = c }
}

// WithCacheTTL 设置缓存 TTL。
func WithCacheTTL(ttl time.Duration) ProfileStoreOption {
	return func(s *ProfileStore) { s.CacheTTL = ttl }
}

// WithKeyPrefix 设置 key 前缀。
func WithKeyPrefix(prefix string) ProfileStoreOption {
	return func(s *ProfileStore) {
		if prefix != "" {
			s.KeyPrefix = prefix
		}
	}
}

// WithClock 替换时钟（测试用）。
func WithClock(now func() time.Time) ProfileStoreOption {
	return func(s *ProfileStore) { s.now = now }
}

// NewProfileStore 创建画像存储；locker 为 nil 时使用进程内锁。
func NewProfileStore(kv core.KeyValueStore, locker core.Locker, opts ...ProfileStoreOption) *ProfileStore {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	s := &ProfileStore{
		kv:        kv,
		locker:    locker,
		KeyPrefix: DefaultProfileKeyPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ core.PreferenceStore = (*ProfileStore)(nil)

func (s *ProfileStore) Name() string { return "profile_store:" + s.kv.Name() }

func (s *ProfileStore) key(userID string) string { return s.KeyPrefix + userID }

func (s *ProfileStore) Get(ctx context.Context, userID string) (*core.PreferenceProfile, error) {
	if userID == "" {
		return nil, core.InvalidInput(core.ModulePreference, "preference: empty user id")
	}
	if s.cache != nil {
		if p, ok := s.cache.Get(userID); ok {
			return p, nil
		}
	}
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(p, s.CacheTTL)
	}
	return p, nil
}

// load 直接读存储，绕过缓存。
func (s *ProfileStore) load(ctx context.Context, userID string) (*core.PreferenceProfile, error) {
	data, err := s.kv.Get(ctx, s.key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, core.ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	var p core.PreferenceProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, core.WrapDomainError(core.ModulePreference, core.ErrorCodeInternalError, "preference: decode profile "+userID, err)
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	p.Normalize()
	return &p, nil
}

func (s *ProfileStore) Save(ctx context.Context, p *core.PreferenceProfile) error {
	if p == nil || p.UserID == "" {
		return core.InvalidInput(core.ModulePreference, "preference: profile without user id")
	}
	if err := s.persist(ctx, p); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Set(p, s.CacheTTL)
	}
	return nil
}

func (s *ProfileStore) persist(ctx context.Context, p *core.PreferenceProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	if err := s.kv.Set(ctx, s.key(p.UserID), data); err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}

func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
	if err := s.kv.Delete(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}

// Scan 的游标对调用方不透明，原样传回下一次调用即可续扫。
func (s *ProfileStore) Scan(ctx context.Context, cursor string, limit int) ([]string, string, error) {
	keys, next, err := s.kv.Scan(ctx, s.KeyPrefix, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("scan profiles: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, s.KeyPrefix))
	}
	return ids, next, nil
}

func (s *ProfileStore) Update(ctx context.Context, userID string, fn func(p *core.PreferenceProfile) (bool, error)) (*core.PreferenceProfile, error) {
	if userID == "" {
		return nil, core.InvalidInput(core.ModulePreference, "preference: empty user id")
	}
	unlock, err := s.locker.Lock(ctx, s.key(userID))
	if err != nil {
		return nil, fmt.Errorf("lock profile %s: %w", userID, err)
	}
	defer unlock()

	// 锁内必须读存储，缓存可能落后于其他进程的写入
	p, err := s.load(ctx, userID)
	if err != nil {
		if !core.IsNotFound(err) {
			return nil, err
		}
		p = core.NewPreferenceProfile(userID)
	}

	changed, err := fn(p)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, nil
	}
	p.Touch(s.now())
	if err := s.persist(ctx, p); err != nil {
		if s.cache != nil {
			s.cache.Invalidate(userID)
		}
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(p, s.CacheTTL)
	}
	return p, nil
}
