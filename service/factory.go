package service

import (
	"context"
	"fmt"

	"github.com/rushteam/searchkit/config"
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/index"
	"github.com/rushteam/searchkit/store"
)

// 存储后端类型
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// NewKeyValueStore 根据配置创建 KV 存储与配套的用户锁（工厂方法）。
//
// redis 后端使用分布式锁，其余后端为单进程，使用进程内锁。
func NewKeyValueStore(cfg config.StoreSettings) (core.KeyValueStore, core.Locker, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return store.NewMemoryStore(), store.NewMemoryLocker(), nil

	case BackendRedis:
		rs, err := store.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return rs, store.NewRedisLocker(rs.Client(), cfg.Lock), nil

	case BackendBadger:
		bs, err := store.NewBadgerStore(cfg.Badger)
		if err != nil {
			return nil, nil, err
		}
		return bs, store.NewMemoryLocker(), nil

	default:
		return nil, nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotSupported,
			fmt.Sprintf("unsupported store backend: %s", cfg.Backend))
	}
}

// NewProfileStore 在 KV 存储之上创建画像存储，CacheSize > 0 时启用本地读缓存。
// 返回的 cache 可能为 nil。
func NewProfileStore(kv core.KeyValueStore, locker core.Locker, cfg config.StoreSettings) (*store.ProfileStore, *store.ProfileCache) {
	opts := []store.ProfileStoreOption{}
	if cfg.KeyPrefix != "" {
		opts = append(opts, store.WithKeyPrefix(cfg.KeyPrefix))
	}
	var cache *store.ProfileCache
	if cfg.CacheSize > 0 {
		cache = store.NewProfileCache(cfg.CacheSize, cfg.CacheTTL)
		opts = append(opts, store.WithCache(cache), store.WithCacheTTL(cfg.CacheTTL))
	}
	return store.NewProfileStore(kv, locker, opts...), cache
}

// NewProductIndex 创建本地商品索引并导入 path 中的商品；path 为空时返回 nil。
func NewProductIndex(ctx context.Context, path string) (*index.BleveIndex, error) {
	if path == "" {
		return nil, nil
	}
	idx, err := index.NewBleveIndex()
	if err != nil {
		return nil, err
	}
	if _, err := idx.LoadFile(ctx, path); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load products %s: %w", path, err)
	}
	return idx, nil
}
