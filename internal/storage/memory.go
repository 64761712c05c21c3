package storage

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/metrics"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

const backendMemory = "memory"

// MemoryStore 为进程内存储实现，主要服务于测试与示例。
// 所有操作并发安全。
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]*row             // label -> pkKey -> row
	refs map[string]map[string]map[string][]any // label -> pkKey -> field -> refs

	ops atomic.Int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建一个空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]map[string]*row),
		refs: make(map[string]map[string]map[string][]any),
	}
}

func (ms *MemoryStore) Save(ctx context.Context, m model.Model) error {
	metrics.StoreOps.WithLabelValues(backendMemory, "save").Inc()
	ms.ops.Inc()

	schema, err := model.SchemaOf(m)
	if err != nil {
		return err
	}
	if schema.PKIsZero(m) {
		return merr.WrapErrPkMissing(schema.Label)
	}
	pk, fields, _, err := schema.Values(m)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	bucket, ok := ms.rows[schema.Label]
	if !ok {
		bucket = make(map[string]*row)
		ms.rows[schema.Label] = bucket
	}
	bucket[pkKey(pk)] = &row{PK: pk, Fields: fields}
	return nil
}

func (ms *MemoryStore) SaveM2M(ctx context.Context, label string, pk any, field string, refs []any) error {
	metrics.StoreOps.WithLabelValues(backendMemory, "save_m2m").Inc()
	ms.ops.Inc()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	byPK, ok := ms.refs[label]
	if !ok {
		byPK = make(map[string]map[string][]any)
		ms.refs[label] = byPK
	}
	key := pkKey(pk)
	byField, ok := byPK[key]
	if !ok {
		byField = make(map[string][]any)
		byPK[key] = byField
	}
	byField[field] = append([]any(nil), refs...)
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, label string, pk any) (model.Model, error) {
	metrics.StoreOps.WithLabelValues(backendMemory, "get").Inc()
	ms.ops.Inc()

	obj, err := materialize(ctx, label, pkKey(pk), ms.fetchRow, ms.fetchM2M)
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendMemory, "get").Inc()
		return nil, err
	}
	return obj, nil
}

func (ms *MemoryStore) List(ctx context.Context, label string) ([]model.Model, error) {
	metrics.StoreOps.WithLabelValues(backendMemory, "list").Inc()
	ms.ops.Inc()

	if _, err := model.Lookup(label); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	keys := make([]string, 0, len(ms.rows[label]))
	for key := range ms.rows[label] {
		keys = append(keys, key)
	}
	ms.mu.RUnlock()
	sort.Strings(keys)

	out := make([]model.Model, 0, len(keys))
	for _, key := range keys {
		obj, err := materialize(ctx, label, key, ms.fetchRow, ms.fetchM2M)
		if err != nil {
			metrics.StoreOpErrors.WithLabelValues(backendMemory, "list").Inc()
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, label string, pk any) error {
	metrics.StoreOps.WithLabelValues(backendMemory, "delete").Inc()
	ms.ops.Inc()

	key := pkKey(pk)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.rows[label][key]; !ok {
		return merr.WrapErrStoreKeyNotFound(label + "/" + key)
	}
	delete(ms.rows[label], key)
	delete(ms.refs[label], key)
	return nil
}

func (ms *MemoryStore) Close() error {
	return nil
}

// Ops 返回累计操作次数，供测试断言。
func (ms *MemoryStore) Ops() int64 {
	return ms.ops.Load()
}

func (ms *MemoryStore) fetchRow(ctx context.Context, label, key string) (*row, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	r, ok := ms.rows[label][key]
	if !ok {
		return nil, merr.WrapErrStoreKeyNotFound(label + "/" + key)
	}
	return r, nil
}

func (ms *MemoryStore) fetchM2M(ctx context.Context, label, key string) (map[string][]any, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make(map[string][]any, len(ms.refs[label][key]))
	for field, refs := range ms.refs[label][key] {
		out[field] = append([]any(nil), refs...)
	}
	return out, nil
}
