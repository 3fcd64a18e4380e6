package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
)

// MemoryLocker 是进程内按 key 的互斥锁，引用计数归零后回收。
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

var _ core.Locker = (*MemoryLocker)(nil)

// LockerConfig 是分布式锁配置。
type LockerConfig struct {
	TTL           time.Duration `koanf:"ttl" validate:"gt=0"`
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0"`
	Prefix        string        `koanf:"prefix"`
}

// DefaultLockerConfig 返回默认配置。
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:           5 * time.Second,
		RetryInterval: 20 * time.Millisecond,
		Prefix:        "lock:",
	}
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式锁，用于多进程共享同一个画像存储。
// 锁持有时间超过 TTL 会自动失效，临界区必须短于 TTL。
type RedisLocker struct {
	client *redis.Client
	cfg    LockerConfig
}

func NewRedisLocker(client *redis.Client, cfg LockerConfig) *RedisLocker {
	def := DefaultLockerConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return &RedisLocker{client: client, cfg: cfg}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.cfg.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, core.Unavailable(core.ModuleStore, "store: acquire lock "+key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方 ctx 可能已取消，释放使用独立的超时
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{lockKey}, token).Err(); err != nil {
				logging.Warn().Err(err).Str("key", lockKey).Msg("release redis lock failed")
			}
		})
	}, nil
}

var _ core.Locker = (*RedisLocker)(nil)
