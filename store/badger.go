package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rushteam/searchkit/core"
)

// badger 中的 key 空间：
//
//	k:{key}              普通 KV
//	z:{key}\x00{member}  有序集合成员，value 为 score
//	h:{key}\x00{field}   Hash 字段
const (
	badgerKVPrefix   = "k:"
	badgerZSetPrefix = "z:"
	badgerHashPrefix = "h:"
	badgerSep        = "\x00"

	badgerMaxRetries = 8
)

// BadgerConfig 是 Badger 配置；Path 为空时使用内存模式。
type BadgerConfig struct {
	Path string `koanf:"path"`
}

// BadgerStore 是 Badger 实现的 KeyValueStore，用于单机持久化部署。
// 有序集合与 Hash 通过 key 前缀模拟。
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, core.Unavailable(core.ModuleStore, "store: open badger", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Name() string { return "badger" }

func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKVPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrStoreNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newBadgerEntry(badgerKVPrefix+key, value, ttl))
	})
}

func newBadgerEntry(key string, value []byte, ttl []int) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if len(ttl) > 0 && ttl[0] > 0 {
		e = e.WithTTL(time.Duration(ttl[0]) * time.Second)
	}
	return e
}

func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerKVPrefix + key)); err != nil {
			return err
		}
		for _, p := range []string{badgerZSetPrefix, badgerHashPrefix} {
			for _, k := range collectKeys(txn, p+key+badgerSep) {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (b *BadgerStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get([]byte(badgerKVPrefix + k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BadgerStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range kvs {
		if err := wb.SetEntry(newBadgerEntry(badgerKVPrefix+k, v, ttl)); err != nil {
			return fmt.Errorf("badger batch set %s: %w", k, err)
		}
	}
	return wb.Flush()
}

// Scan 按字典序遍历；cursor 是上一页最后一个 key。
func (b *BadgerStore) Scan(ctx context.Context, prefix, cursor string, count int) ([]string, string, error) {
	if count <= 0 {
		count = 100
	}
	var keys []string
	var more bool
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(badgerKVPrefix + prefix)
		start := p
		if cursor != "" {
			start = []byte(badgerKVPrefix + cursor)
		}
		for it.Seek(start); it.ValidForPrefix(p); it.Next() {
			k := strings.TrimPrefix(string(it.Item().Key()), badgerKVPrefix)
			if k == cursor {
				continue
			}
			if len(keys) == count {
				more = true
				return nil
			}
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if !more {
		return keys, "", nil
	}
	return keys, keys[len(keys)-1], nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ core.KeyValueStore = (*BadgerStore)(nil)

func collectKeys(txn *badger.Txn, prefix string) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func encodeScore(score float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(score))
	return buf
}

func decodeScore(buf []byte) float64 {
	if len(buf) != 8 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

func (b *BadgerStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerZSetPrefix+key+badgerSep+member), encodeScore(score))
	})
}

func (b *BadgerStore) zmembers(txn *badger.Txn, key string) ([]zpair, error) {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(badgerZSetPrefix + key + badgerSep)
	var pairs []zpair
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		member := string(item.Key()[len(prefix):])
		err := item.Value(func(val []byte) error {
			pairs = append(pairs, zpair{member: member, score: decodeScore(val)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})
	return pairs, nil
}

func (b *BadgerStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		pairs, err := b.zmembers(txn, key)
		if err != nil {
			return err
		}
		for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
			pairs[i], pairs[j] = pairs[j], pairs[i]
		}
		s, e, ok := normalizeRange(start, stop, len(pairs))
		if !ok {
			return nil
		}
		for i := s; i <= e; i++ {
			out = append(out, pairs[i].member)
		}
		return nil
	})
	return out, err
}

func (b *BadgerStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return b.retryUpdate(func(txn *badger.Txn) error {
		pairs, err := b.zmembers(txn, key)
		if err != nil {
			return err
		}
		s, e, ok := normalizeRange(start, stop, len(pairs))
		if !ok {
			return nil
		}
		for i := s; i <= e; i++ {
			if err := txn.Delete([]byte(badgerZSetPrefix + key + badgerSep + pairs[i].member)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerHashPrefix + key + badgerSep + field))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrStoreNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerHashPrefix+key+badgerSep+field), value)
	})
}

func (b *BadgerStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerHashPrefix + key + badgerSep)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(item.Key()[len(prefix):])] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BadgerStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	var cur int64
	err := b.retryUpdate(func(txn *badger.Txn) error {
		k := []byte(badgerHashPrefix + key + badgerSep + field)
		cur = 0
		item, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			n, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: hash value is not an integer", err)
			}
			cur = n
		}
		cur += incr
		return txn.Set(k, []byte(strconv.FormatInt(cur, 10)))
	})
	return cur, err
}

// retryUpdate 在乐观事务冲突时重试。
func (b *BadgerStore) retryUpdate(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < badgerMaxRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
