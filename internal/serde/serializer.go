package serde

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/log"
	"github.com/lk2023060901/fixture-garden-go/pkg/metrics"
)

// Serialize 将一组模型实例按指定格式写入 w。
//
// 对象按输入顺序写出；带嵌入父模型的实例先写出父记录再写出自身记录
// （深度优先，每个对象的父链只写一次）。
// 写出过程是流式的：对象遍历与输出落盘解耦，不会整体缓冲。
func Serialize(ctx context.Context, format string, w io.Writer, objs []model.Model, opts ...Option) error {
	o := applyOptions(opts)
	f, err := GetFormat(format)
	if err != nil {
		return err
	}

	start := time.Now()
	cw := &countingWriter{w: w}
	em := f.NewEmitter(cw, o)
	if err := em.Begin(); err != nil {
		return err
	}

	emitted := 0
	for _, obj := range objs {
		recs, err := recordsOf(obj, o)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := em.Emit(rec); err != nil {
				return err
			}
			emitted++
		}
	}
	if err := em.End(); err != nil {
		return err
	}

	metrics.SerializedObjects.WithLabelValues(format).Add(float64(emitted))
	metrics.SerializeBytes.WithLabelValues(format).Observe(float64(cw.written))
	metrics.SerializeDuration.WithLabelValues(format).Observe(float64(time.Since(start).Milliseconds()))
	log.Ctx(ctx).Debug("serialized objects",
		zap.String("format", format),
		zap.Int("records", emitted),
		zap.Int64("bytes", cw.written))
	return nil
}

// SerializeRecords 将已构建好的中间表示按指定格式写入 w。
// 记录按给定顺序原样写出，不再做父链展开。
func SerializeRecords(ctx context.Context, format string, w io.Writer, recs []*Record, opts ...Option) error {
	o := applyOptions(opts)
	f, err := GetFormat(format)
	if err != nil {
		return err
	}

	start := time.Now()
	cw := &countingWriter{w: w}
	em := f.NewEmitter(cw, o)
	if err := em.Begin(); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := em.Emit(rec); err != nil {
			return err
		}
	}
	if err := em.End(); err != nil {
		return err
	}

	metrics.SerializedObjects.WithLabelValues(format).Add(float64(len(recs)))
	metrics.SerializeBytes.WithLabelValues(format).Observe(float64(cw.written))
	metrics.SerializeDuration.WithLabelValues(format).Observe(float64(time.Since(start).Milliseconds()))
	log.Ctx(ctx).Debug("serialized records",
		zap.String("format", format),
		zap.Int("records", len(recs)),
		zap.Int64("bytes", cw.written))
	return nil
}

// ToRecords 将一组模型实例转换为中间表示（"native" 形式）。
func ToRecords(objs []model.Model, opts ...Option) ([]*Record, error) {
	o := applyOptions(opts)
	var recs []*Record
	for _, obj := range objs {
		rs, err := recordsOf(obj, o)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rs...)
	}
	return recs, nil
}

// recordsOf 生成单个实例的记录序列：父链记录在前，自身记录在后。
func recordsOf(m model.Model, o *Options) ([]*Record, error) {
	schema, err := model.Lookup(m.ModelLabel())
	if err != nil {
		return nil, err
	}

	var recs []*Record
	if parent, ok := schema.ParentValue(m); ok {
		parentRecs, err := recordsOf(parent, o)
		if err != nil {
			return nil, err
		}
		recs = append(recs, parentRecs...)
	}

	rec, err := recordOf(m, schema, o)
	if err != nil {
		return nil, err
	}
	return append(recs, rec), nil
}

func recordOf(m model.Model, schema *model.Schema, o *Options) (*Record, error) {
	pk, fields, m2m, err := schema.Values(m)
	if err != nil {
		return nil, err
	}

	order := schema.FieldNames()
	if o.Fields != nil {
		order = filterNames(order, o)
		for name := range fields {
			if !o.Fields.Contain(name) {
				delete(fields, name)
			}
		}
		for name := range m2m {
			if !o.Fields.Contain(name) {
				delete(m2m, name)
			}
		}
	}

	rec := &Record{
		Model:  schema.Label,
		PK:     pk,
		Fields: fields,
		M2M:    m2m,
		order:  order,
	}
	if o.NaturalPrimaryKeys {
		if nk, ok := m.(model.NaturalKeyed); ok {
			rec.PK = nil
			rec.Natural = nk.NaturalKey()
		}
		if o.Resolver != nil {
			if err := naturalizeFKs(schema, fields, o); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

// naturalizeFKs 将外键字段的主键值替换为目标对象的自然键。
// 目标未实现 NaturalKeyed 时保持主键形式。
func naturalizeFKs(schema *model.Schema, fields map[string]any, o *Options) error {
	for _, f := range schema.Fields {
		if f.Kind != model.KindFK {
			continue
		}
		raw, ok := fields[f.Name]
		if !ok {
			continue
		}
		target, err := o.Resolver(f.Ref, raw)
		if err != nil {
			return err
		}
		if nk, ok := target.(model.NaturalKeyed); ok {
			fields[f.Name] = nk.NaturalKey()
		}
	}
	return nil
}

func filterNames(names []string, o *Options) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if o.Fields.Contain(name) {
			out = append(out, name)
		}
	}
	return out
}

// countingWriter 统计写出的字节数，用于指标上报。
type countingWriter struct {
	w       io.Writer
	written int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.written += int64(n)
	return n, err
}
