package core

import "context"

// Store 是存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 领域层不依赖基础设施层
//
// 使用场景：
//   - 偏好画像持久化（JSON 文档，一用户一 key）
//   - 实验分配记录、计数
//   - 交互日志
//
// 实现：
//   - store.MemoryStore（测试 / 开发）
//   - store.RedisStore（多实例部署）
//   - store.BadgerStore（单机持久化）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl 单位为秒
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// BatchGet 批量读取，不存在的 key 不出现在结果中
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet 批量写入
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error

	// Close 关闭连接/释放资源
	Close() error
}

// Scanner 支持按前缀游标遍历 key，用于全量衰减 sweep。
//
// cursor 对调用方不透明：为空表示从头开始，返回的 next 为空表示遍历结束。
// 同一个 key 可能被返回多次（Redis SCAN 语义），调用方需保证处理幂等。
type Scanner interface {
	Scan(ctx context.Context, prefix, cursor string, count int) (keys []string, next string, err error)
}

// KeyValueStore 是 Store 的扩展接口，支持更丰富的 KV 操作。
//
// 扩展功能：
//   - 有序集合（SortedSet）：交互日志（score = 时间戳）
//   - 哈希表（Hash）：实验分配记录与计数
//
// 如果后端不支持某些操作，可返回 ErrStoreNotSupported。
type KeyValueStore interface {
	Store
	Scanner

	// ZAdd 向有序集合添加成员
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange 按分数降序获取有序集合成员（start/stop 为名次，含两端，-1 表示末尾）
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZRemRangeByRank 按分数升序名次删除成员（支持负数名次，语义同 Redis）
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	// HGet 读取 Hash 字段
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HGetAll 读取整个 Hash
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// HIncrBy 原子递增 Hash 字段，返回递增后的值
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
}

// Locker 提供按 key 的互斥，用于串行化同一用户的读-改-写。
//
// Lock 会阻塞直到拿到锁或 ctx 结束；返回的 unlock 必须被调用且只调用一次。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsStoreNotSupported 检查错误是否为操作不支持
func IsStoreNotSupported(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotSupported
	}
	return false
}
