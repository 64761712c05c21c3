package storage

import (
	"context"

	"github.com/spf13/cast"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
)

// Store 抽象按主键寻址的对象存储，是反序列化显式提交（Save）的目标。
//
// 语义约定：
//   - Save 为 upsert，且只写入实例自身标签下的本地字段行；
//     嵌入父模型的行由父记录单独保存（fixture 流中父记录先于子记录）。
//   - Get/List 返回完整对象：沿父模型链合并父行数据，并回填多对多字段。
//   - 多对多引用独立于行数据存放，通过 SaveM2M 写入。
type Store interface {
	// Save 写入实例本地字段行，主键为零值时返回 ErrPkMissing。
	Save(ctx context.Context, m model.Model) error

	// SaveM2M 覆盖写入某条记录一个多对多字段的引用列表。
	SaveM2M(ctx context.Context, label string, pk any, field string, refs []any) error

	// Get 按主键取回完整对象，不存在时返回 ErrStoreKeyNotFound。
	Get(ctx context.Context, label string, pk any) (model.Model, error)

	// List 返回某标签下的全部完整对象，按主键字典序排列。
	List(ctx context.Context, label string) ([]model.Model, error)

	// Delete 删除记录及其多对多数据，不存在时返回 ErrStoreKeyNotFound。
	Delete(ctx context.Context, label string, pk any) error

	// Close 释放底层资源。
	Close() error
}

// row 为存储中的一行：主键加上本地字段的编码值。
type row struct {
	PK     any            `json:"pk"`
	Fields map[string]any `json:"fields"`
}

// pkKey 将主键值规整为存储键片段。
func pkKey(pk any) string {
	return cast.ToString(pk)
}

// rowFetcher 按标签与主键键取行，行不存在时返回 ErrStoreKeyNotFound。
type rowFetcher func(ctx context.Context, label, key string) (*row, error)

// m2mFetcher 取某条记录的全部多对多引用。
type m2mFetcher func(ctx context.Context, label, key string) (map[string][]any, error)

// materialize 从行数据重建完整对象：
// 先填充本地字段，再沿父模型链逐层合并父行，最后回填多对多字段。
func materialize(ctx context.Context, label, key string, fetchRow rowFetcher, fetchM2M m2mFetcher) (model.Model, error) {
	schema, err := model.Lookup(label)
	if err != nil {
		return nil, err
	}
	inst, err := model.New(label)
	if err != nil {
		return nil, err
	}
	if err := fill(ctx, schema, inst, key, fetchRow, fetchM2M); err != nil {
		return nil, err
	}
	return inst, nil
}

func fill(ctx context.Context, schema *model.Schema, inst model.Model, key string, fetchRow rowFetcher, fetchM2M m2mFetcher) error {
	r, err := fetchRow(ctx, schema.Label, key)
	if err != nil {
		return err
	}
	if err := schema.SetPK(inst, r.PK); err != nil {
		return err
	}
	if err := schema.Apply(inst, r.Fields, false); err != nil {
		return err
	}

	refs, err := fetchM2M(ctx, schema.Label, key)
	if err != nil {
		return err
	}
	for field, list := range refs {
		if err := schema.ApplyM2M(inst, field, list); err != nil {
			return err
		}
	}

	if parent, ok := schema.ParentValue(inst); ok {
		return fill(ctx, schema.Parent, parent, key, fetchRow, fetchM2M)
	}
	return nil
}
