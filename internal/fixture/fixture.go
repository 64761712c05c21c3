// Package fixture 提供数据集级别的导出与装载：
// Dump 将存储中的对象写为 fixture 流，Load 将 fixture 流装回存储。
package fixture

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/internal/serde"
	"github.com/lk2023060901/fixture-garden-go/internal/storage"
	"github.com/lk2023060901/fixture-garden-go/pkg/log"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/conc"
)

// Dump 将指定标签下的全部对象按 format 写入 w，返回写出的记录数。
// labels 为空时导出所有已注册模型。
//
// 各标签的对象并行取数，写出顺序仍按标签的给定顺序。
// 子模型对象会展开出父链记录，与父标签自身的记录按记录标识去重
//（有主键按主键，自然键形式按各分量）。
func Dump(ctx context.Context, st storage.Store, labels []string, format string, w io.Writer, opts ...serde.Option) (int, error) {
	if len(labels) == 0 {
		labels = model.Labels()
	}
	if len(labels) == 0 {
		return 0, serde.SerializeRecords(ctx, format, w, nil, opts...)
	}

	// 自然键模式下外键目标从本存储取回；调用方传入的 Resolver 优先。
	opts = append([]serde.Option{serde.WithResolver(func(label string, pk any) (model.Model, error) {
		return st.Get(ctx, label, pk)
	})}, opts...)

	pool := conc.NewPool[[]model.Model](len(labels), conc.WithPreAlloc(true))
	defer pool.Release()

	futures := make([]*conc.Future[[]model.Model], len(labels))
	for i, label := range labels {
		label := label
		futures[i] = pool.Submit(func() ([]model.Model, error) {
			return st.List(ctx, label)
		})
	}

	var recs []*serde.Record
	seen := make(map[string]struct{})
	for i, future := range futures {
		objs, err := future.Await()
		if err != nil {
			return 0, err
		}
		expanded, err := serde.ToRecords(objs, opts...)
		if err != nil {
			return 0, err
		}
		for _, rec := range expanded {
			key := rec.Identity()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			recs = append(recs, rec)
		}
		log.Ctx(ctx).Debug("dumped label",
			zap.String("label", labels[i]),
			zap.Int("objects", len(objs)))
	}

	if err := serde.SerializeRecords(ctx, format, w, recs, opts...); err != nil {
		return 0, err
	}
	log.Ctx(ctx).Info("fixture dump finished",
		zap.String("format", format),
		zap.Strings("labels", labels),
		zap.Int("records", len(recs)))
	return len(recs), nil
}

// Load 从 r 中按 format 读取 fixture 流并逐条写入 st，返回装载的对象数。
//
// 装载是流式且逐条提交的：某条记录失败时，之前的记录已经生效。
// 多对多数据随每条记录延迟写入，流内前向引用因此可以成立。
func Load(ctx context.Context, st storage.Store, format string, r io.Reader, opts ...serde.Option) (int, error) {
	d, err := serde.Deserialize(format, r, opts...)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for {
		obj, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, err
		}
		if err := obj.Save(ctx, st); err != nil {
			return loaded, err
		}
		loaded++
	}

	log.Ctx(ctx).Info("fixture load finished",
		zap.String("format", format),
		zap.Int("objects", loaded))
	return loaded, nil
}
