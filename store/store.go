// Package store 提供 core.KeyValueStore / core.Locker / core.PreferenceStore / core.InteractionLog 的实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	kv := store.NewMemoryStore()
//	profiles := store.NewProfileStore(kv, store.NewMemoryLocker(), store.WithCache(store.NewProfileCache(10000, time.Minute)))
package store

import "github.com/rushteam/searchkit/core"

// ErrNotFound 是 core.ErrStoreNotFound 的别名，便于包内使用。
var ErrNotFound = core.ErrStoreNotFound

// normalizeRange 把 Redis 风格的名次区间（支持负数）转换为 [start, stop] 的合法下标。
// ok 为 false 表示区间为空。
func normalizeRange(start, stop int64, n int) (int64, int64, bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if size == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}
