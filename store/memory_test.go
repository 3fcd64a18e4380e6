package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/rushteam/searchkit/core"
)

// kvBackends 返回需要跑同一套用例的后端。
func kvBackends(t *testing.T) map[string]core.KeyValueStore {
	t.Helper()
	bs, err := NewBadgerStore(BadgerConfig{})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	ms := NewMemoryStore()
	t.Cleanup(func() {
		_ = bs.Close()
		_ = ms.Close()
	})
	return map[string]core.KeyValueStore{"memory": ms, "badger": bs}
}

func TestKeyValueStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := kv.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
				t.Fatalf("Get(missing) err = %v, want not found", err)
			}
			if err := kv.Set(ctx, "a", []byte("1")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := kv.Get(ctx, "a")
			if err != nil || string(got) != "1" {
				t.Fatalf("Get(a) = %q, %v", got, err)
			}
			if err := kv.BatchSet(ctx, map[string][]byte{"b": []byte("2"), "c": []byte("3")}); err != nil {
				t.Fatalf("BatchSet: %v", err)
			}
			vals, err := kv.BatchGet(ctx, []string{"a", "b", "zz"})
			if err != nil {
				t.Fatalf("BatchGet: %v", err)
			}
			if len(vals) != 2 || string(vals["b"]) != "2" {
				t.Errorf("BatchGet = %v", vals)
			}
			if err := kv.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := kv.Get(ctx, "a"); !core.IsStoreNotFound(err) {
				t.Errorf("Get after delete err = %v", err)
			}
		})
	}
}

func TestKeyValueStore_ScanPaginates(t *testing.T) {
	ctx := context.Background()
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"p:1", "p:2", "p:3", "p:4", "p:5", "other:1"} {
				if err := kv.Set(ctx, k, []byte("x")); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}
			var all []string
			cursor := ""
			pages := 0
			for {
				keys, next, err := kv.Scan(ctx, "p:", cursor, 2)
				if err != nil {
					t.Fatalf("Scan: %v", err)
				}
				all = append(all, keys...)
				pages++
				if next == "" {
					break
				}
				cursor = next
				if pages > 10 {
					t.Fatal("scan did not terminate")
				}
			}
			want := []string{"p:1", "p:2", "p:3", "p:4", "p:5"}
			if !reflect.DeepEqual(all, want) {
				t.Errorf("scan = %v, want %v", all, want)
			}
			if pages != 3 {
				t.Errorf("pages = %d, want 3", pages)
			}
		})
	}
}

func TestKeyValueStore_SortedSet(t *testing.T) {
	ctx := context.Background()
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			for i, m := range []string{"a", "b", "c", "d"} {
				if err := kv.ZAdd(ctx, "z", float64(i+1), m); err != nil {
					t.Fatalf("ZAdd: %v", err)
				}
			}
			got, err := kv.ZRange(ctx, "z", 0, 1)
			if err != nil {
				t.Fatalf("ZRange: %v", err)
			}
			if !reflect.DeepEqual(got, []string{"d", "c"}) {
				t.Errorf("ZRange(0,1) = %v, want [d c]", got)
			}
			// 只保留最高的 2 个
			if err := kv.ZRemRangeByRank(ctx, "z", 0, -3); err != nil {
				t.Fatalf("ZRemRangeByRank: %v", err)
			}
			got, _ = kv.ZRange(ctx, "z", 0, -1)
			if !reflect.DeepEqual(got, []string{"d", "c"}) {
				t.Errorf("after trim = %v, want [d c]", got)
			}
		})
	}
}

func TestKeyValueStore_Hash(t *testing.T) {
	ctx := context.Background()
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := kv.HGet(ctx, "h", "f"); !core.IsStoreNotFound(err) {
				t.Fatalf("HGet(missing) err = %v", err)
			}
			if err := kv.HSet(ctx, "h", "f", []byte("v")); err != nil {
				t.Fatalf("HSet: %v", err)
			}
			for i := 0; i < 3; i++ {
				if _, err := kv.HIncrBy(ctx, "h", "n", 2); err != nil {
					t.Fatalf("HIncrBy: %v", err)
				}
			}
			all, err := kv.HGetAll(ctx, "h")
			if err != nil {
				t.Fatalf("HGetAll: %v", err)
			}
			if string(all["f"]) != "v" || string(all["n"]) != "6" {
				t.Errorf("HGetAll = %v", all)
			}
			if _, err := kv.HIncrBy(ctx, "h", "f", 1); err == nil {
				t.Error("HIncrBy on non-integer field should fail")
			}
		})
	}
}

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		start, stop int64
		n           int
		wantS       int64
		wantE       int64
		wantOK      bool
	}{
		{0, -1, 5, 0, 4, true},
		{0, 10, 3, 0, 2, true},
		{-2, -1, 5, 3, 4, true},
		{0, -6, 5, 0, 0, false},
		{0, -1, 0, 0, 0, false},
		{3, 1, 5, 0, 0, false},
	}
	for _, tt := range tests {
		s, e, ok := normalizeRange(tt.start, tt.stop, tt.n)
		if ok != tt.wantOK || (ok && (s != tt.wantS || e != tt.wantE)) {
			t.Errorf("normalizeRange(%d,%d,%d) = %d,%d,%v", tt.start, tt.stop, tt.n, s, e, ok)
		}
	}
}
