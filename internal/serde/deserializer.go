package serde

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/internal/storage"
	"github.com/lk2023060901/fixture-garden-go/pkg/log"
	"github.com/lk2023060901/fixture-garden-go/pkg/metrics"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

// DeserializedObject 为一条反序列化结果：
// 一个尚未保存的内存实例，加上延迟处理的多对多数据。
//
// 多对多引用在 Save 之前既不写入实例字段，也不触碰任何存储，
// 因此同一流内的前向引用可以在全部行保存后自然成立。
type DeserializedObject struct {
	// Object 为未保存的模型实例。
	Object model.Model

	// M2M 为各多对多字段的原始引用列表（未经类型转换）。
	M2M map[string][]any

	// FK 为以自然键形式出现的外键字段取值，
	// 与 M2M 一样延迟到 Save 时在存储中解析为主键。
	FK map[string][]any

	// Natural 为记录携带的自然键，没有则为 nil。
	Natural []any

	schema *model.Schema
}

// Save 将对象持久化到 st：先写行数据，再写多对多引用。
// 主键缺失且无法通过自然键定位既有记录时返回错误，
// 此时存储保持原样。
func (d *DeserializedObject) Save(ctx context.Context, st storage.Store) error {
	if d.schema.PKIsZero(d.Object) {
		if err := d.resolveNatural(ctx, st); err != nil {
			return err
		}
	}

	// 自然键形式的外键在写行之前回填为目标主键。
	for _, name := range sortedKeys(d.FK) {
		f, ok := d.schema.FieldByName(name)
		if !ok || f.Kind != model.KindFK {
			return merr.WrapErrFieldNotFound(d.schema.Label, name)
		}
		pk, err := resolveNaturalPK(ctx, st, f.Ref, d.FK[name])
		if err != nil {
			return err
		}
		if err := d.schema.Apply(d.Object, map[string]any{name: pk}, false); err != nil {
			return err
		}
	}

	if err := st.Save(ctx, d.Object); err != nil {
		return err
	}

	pk := d.schema.PK(d.Object)
	for _, name := range sortedKeys(d.M2M) {
		f, ok := d.schema.FieldByName(name)
		if !ok {
			return merr.WrapErrFieldNotFound(d.schema.Label, name)
		}
		refs := make([]any, 0, len(d.M2M[name]))
		for _, raw := range d.M2M[name] {
			ref, err := d.schema.CoerceRef(f, raw)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		if err := d.schema.ApplyM2M(d.Object, name, refs); err != nil {
			return err
		}
		if err := st.SaveM2M(ctx, d.schema.Label, pk, name, refs); err != nil {
			return err
		}
	}
	return nil
}

// resolveNatural 通过自然键在存储中定位既有记录并回填主键。
func (d *DeserializedObject) resolveNatural(ctx context.Context, st storage.Store) error {
	if len(d.Natural) == 0 {
		return merr.WrapErrPkMissing(d.schema.Label, "record has neither pk nor natural key")
	}
	pk, err := resolveNaturalPK(ctx, st, d.schema.Label, d.Natural)
	if err != nil {
		return err
	}
	return d.schema.SetPK(d.Object, pk)
}

// resolveNaturalPK 在存储中查找自然键对应的既有记录并返回其主键。
func resolveNaturalPK(ctx context.Context, st storage.Store, label string, key []any) (any, error) {
	schema, err := model.Lookup(label)
	if err != nil {
		return nil, err
	}

	want := fingerprintKey(key)
	existing, err := st.List(ctx, label)
	if err != nil {
		return nil, err
	}
	for _, candidate := range existing {
		nk, ok := candidate.(model.NaturalKeyed)
		if !ok {
			break
		}
		if fingerprintKey(nk.NaturalKey()) == want {
			return schema.PK(candidate), nil
		}
	}
	return nil, merr.WrapErrNaturalKeyUnresolved(label, key)
}

// fingerprintKey 将自然键编码为可比较的字符串。
// 各分量带长度前缀，相邻分量的拼接因此不会产生歧义。
func fingerprintKey(key []any) string {
	var sb strings.Builder
	for _, part := range key {
		s := cast.ToString(part)
		sb.WriteString(strconv.Itoa(len(s)))
		sb.WriteByte(':')
		sb.WriteString(s)
	}
	return sb.String()
}

// Deserializer 从一个 fixture 流中逐条产出 DeserializedObject。
type Deserializer struct {
	format string
	parser Parser
	o      *Options
}

// Deserialize 按指定格式打开一个 fixture 流。
// 返回的 Deserializer 是一次性的，随底层 Reader 消费完毕而结束。
func Deserialize(format string, r io.Reader, opts ...Option) (*Deserializer, error) {
	o := applyOptions(opts)
	f, err := GetFormat(format)
	if err != nil {
		return nil, err
	}
	parser, err := f.NewParser(r, o)
	if err != nil {
		return nil, err
	}
	return &Deserializer{
		format: format,
		parser: parser,
		o:      o,
	}, nil
}

// Next 返回流中的下一条对象，流结束时返回 io.EOF。
func (d *Deserializer) Next() (*DeserializedObject, error) {
	rec, err := d.parser.Next()
	if err != nil {
		return nil, err
	}
	obj, err := fromRecord(rec, d.o)
	if err != nil {
		return nil, err
	}
	metrics.DeserializedObjects.WithLabelValues(d.format).Inc()
	return obj, nil
}

// DeserializeAll 读取整个流并返回全部对象。
func DeserializeAll(ctx context.Context, format string, r io.Reader, opts ...Option) ([]*DeserializedObject, error) {
	d, err := Deserialize(format, r, opts...)
	if err != nil {
		return nil, err
	}

	var out []*DeserializedObject
	for {
		obj, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	log.Ctx(ctx).Debug("deserialized objects",
		zap.String("format", format),
		zap.Int("objects", len(out)))
	return out, nil
}

// FromRecords 将中间表示转换为反序列化结果（"native" 入口）。
func FromRecords(recs []*Record, opts ...Option) ([]*DeserializedObject, error) {
	o := applyOptions(opts)
	out := make([]*DeserializedObject, 0, len(recs))
	for _, rec := range recs {
		obj, err := fromRecord(rec, o)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func fromRecord(rec *Record, o *Options) (*DeserializedObject, error) {
	schema, err := model.Lookup(rec.Model)
	if err != nil {
		return nil, err
	}
	inst, err := model.New(rec.Model)
	if err != nil {
		return nil, err
	}

	if rec.PK != nil {
		if err := schema.SetPK(inst, rec.PK); err != nil {
			return nil, err
		}
	}

	fields, m2m, err := schema.Route(rec.Fields, o.IgnoreNonExistent)
	if err != nil {
		return nil, err
	}
	fk := make(map[string][]any)
	for name, val := range fields {
		f, ok := schema.FieldByName(name)
		if !ok || f.Kind != model.KindFK {
			continue
		}
		if refs, ok := val.([]any); ok {
			fk[name] = refs
			delete(fields, name)
		}
	}
	for name, refs := range rec.M2M {
		if _, ok := schema.FieldByName(name); !ok {
			if o.IgnoreNonExistent {
				continue
			}
			return nil, merr.WrapErrFieldNotFound(rec.Model, name)
		}
		m2m[name] = refs
	}
	if err := schema.Apply(inst, fields, o.IgnoreNonExistent); err != nil {
		return nil, err
	}

	return &DeserializedObject{
		Object:  inst,
		M2M:     m2m,
		FK:      fk,
		Natural: rec.Natural,
		schema:  schema,
	}, nil
}
