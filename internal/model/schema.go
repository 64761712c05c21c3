package model

import (
	"encoding/base64"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/typeutil"
)

// TagName 为模型字段声明使用的结构体 tag 名。
//
// 语法：
//
//	`serde:"<name>[,pk][,fk=<label>][,m2m=<label>]"`
//	`serde:"-"` 表示该字段不参与序列化。
//
// name 为空时使用字段名的小写形式。
const TagName = "serde"

// FieldKind 表示字段在序列化语义上的类别。
type FieldKind uint8

const (
	// KindValue 为普通标量字段。
	KindValue FieldKind = iota + 1
	// KindFK 为外键字段，字段值为目标模型的主键。
	KindFK
	// KindM2M 为多对多字段，字段值为目标模型的主键列表。
	KindM2M
)

var kindNames = map[FieldKind]string{
	KindValue: "value",
	KindFK:    "fk",
	KindM2M:   "m2m",
}

func (k FieldKind) String() string {
	return kindNames[k]
}

// Field 描述模型结构体中的一个本地字段。
type Field struct {
	// Name 为字段在序列化流中的名称。
	Name string
	// Kind 为字段类别。
	Kind FieldKind
	// Ref 为 fk/m2m 字段引用的目标模型标签。
	Ref string
	// Index 为 reflect 访问路径。
	Index []int
	// Type 为字段的 Go 类型。
	Type reflect.Type
}

// Schema 为某个模型类型的反射元数据，构建一次后缓存复用。
//
// 关键不变量：Fields 只包含该类型“本地声明”的字段。
// 嵌入的父模型（多表继承的 Go 表达）记录在 Parent 中，
// 其字段归属父模型的记录，绝不会重复出现在子模型的字段集合里。
type Schema struct {
	// Label 为模型标签，形如 "app.name"。
	Label string
	// Type 为模型结构体类型（非指针）。
	Type reflect.Type
	// Parent 为嵌入的父模型 Schema，没有则为 nil。
	Parent *Schema
	// PKField 为主键字段，不在 Fields 中。
	PKField *Field

	// Fields 按声明顺序排列。
	Fields []*Field

	parentIndex []int
	fieldByName map[string]*Field
	fieldNames  typeutil.FieldSet
}

var (
	labelPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)
	timeType     = reflect.TypeOf(time.Time{})
	bytesType    = reflect.TypeOf([]byte(nil))
	modelType    = reflect.TypeOf((*Model)(nil)).Elem()

	schemaCache sync.Map // reflect.Type -> *Schema
)

// ValidateLabel 校验模型标签是否符合 "app.name" 的小写形式。
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return merr.WrapErrModelIllegalLabel(label, "label must match app.name in lowercase")
	}
	return nil
}

// SchemaOf 返回模型的 Schema。
// 同一类型只构建一次，并发安全。
func SchemaOf(m Model) (*Schema, error) {
	t := reflect.TypeOf(m)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*Schema), nil
	}

	s, err := buildSchema(t, m.ModelLabel())
	if err != nil {
		return nil, err
	}
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

func buildSchema(t reflect.Type, label string) (*Schema, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, merr.WrapErrModelNotStruct(t.String())
	}

	s := &Schema{
		Label:       label,
		Type:        t,
		fieldByName: make(map[string]*Field),
		fieldNames:  typeutil.NewFieldSet(),
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue // 未导出字段
		}

		if sf.Anonymous && isEmbeddedModel(sf.Type) {
			if s.Parent != nil {
				return nil, merr.WrapErrModelIllegalLabel(label, "multiple embedded parent models")
			}
			parent, err := SchemaOf(reflect.New(sf.Type).Interface().(Model))
			if err != nil {
				return nil, err
			}
			s.Parent = parent
			s.parentIndex = sf.Index
			continue
		}

		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		f, isPK, err := parseField(label, sf, tag)
		if err != nil {
			return nil, err
		}
		if isPK {
			if s.PKField != nil {
				return nil, merr.WrapErrModelIllegalLabel(label, "multiple primary key fields")
			}
			s.PKField = f
			continue
		}
		if s.fieldNames.Contain(f.Name) {
			return nil, merr.WrapErrModelIllegalLabel(label, "duplicate field name "+f.Name)
		}
		s.Fields = append(s.Fields, f)
		s.fieldByName[f.Name] = f
		s.fieldNames.Insert(f.Name)
	}

	// 未显式标注主键时，退回到名为 ID 的字段。
	// 被 serde:"-" 排除的 ID 不参与回退。
	if s.PKField == nil {
		if sf, ok := t.FieldByName("ID"); ok && len(sf.Index) == 1 && sf.Tag.Get(TagName) != "-" {
			f, _, err := parseField(label, sf, "")
			if err != nil {
				return nil, err
			}
			s.PKField = f
			s.Fields = removeField(s.Fields, f.Name)
			delete(s.fieldByName, f.Name)
		}
	}
	if s.PKField == nil && s.Parent == nil {
		return nil, merr.WrapErrModelIllegalLabel(label, "no primary key field")
	}
	if s.PKField != nil {
		if err := checkPKType(label, s.PKField); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func isEmbeddedModel(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	return reflect.PointerTo(t).Implements(modelType)
}

func parseField(label string, sf reflect.StructField, tag string) (*Field, bool, error) {
	f := &Field{
		Name:  strings.ToLower(sf.Name),
		Kind:  KindValue,
		Index: sf.Index,
		Type:  sf.Type,
	}
	isPK := false

	parts := strings.Split(tag, ",")
	if len(parts) > 0 && parts[0] != "" {
		f.Name = parts[0]
	}
	for _, opt := range parts[1:] {
		switch {
		case opt == "pk":
			isPK = true
		case strings.HasPrefix(opt, "fk="):
			f.Kind = KindFK
			f.Ref = strings.TrimPrefix(opt, "fk=")
		case strings.HasPrefix(opt, "m2m="):
			f.Kind = KindM2M
			f.Ref = strings.TrimPrefix(opt, "m2m=")
		case opt == "":
		default:
			return nil, false, merr.WrapErrParameterInvalid("pk|fk=<label>|m2m=<label>", opt, "unknown serde tag option")
		}
	}

	if f.Ref != "" {
		if err := ValidateLabel(f.Ref); err != nil {
			return nil, false, err
		}
	}

	switch f.Kind {
	case KindValue, KindFK:
		if !isSupportedScalar(f.Type) {
			return nil, false, merr.WrapErrFieldUnsupported(label, f.Name, f.Type.String())
		}
	case KindM2M:
		if f.Type.Kind() != reflect.Slice || !isSupportedPK(f.Type.Elem()) {
			return nil, false, merr.WrapErrFieldUnsupported(label, f.Name, f.Type.String())
		}
	}
	return f, isPK, nil
}

func isSupportedScalar(t reflect.Type) bool {
	if t == timeType || t == bytesType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isSupportedPK(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func checkPKType(label string, f *Field) error {
	if f.Kind != KindValue || !isSupportedPK(f.Type) {
		return merr.WrapErrFieldUnsupported(label, f.Name, f.Type.String())
	}
	return nil
}

func removeField(fields []*Field, name string) []*Field {
	out := fields[:0]
	for _, f := range fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// FieldByName 按序列化名称查找本地字段。
func (s *Schema) FieldByName(name string) (*Field, bool) {
	f, ok := s.fieldByName[name]
	return f, ok
}

// FieldNames 按声明顺序返回本地字段名。
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// ParentValue 返回嵌入父模型的指针形式。
// 模型没有父模型时返回 false。
func (s *Schema) ParentValue(m Model) (Model, bool) {
	if s.Parent == nil {
		return nil, false
	}
	v := structValue(m).FieldByIndex(s.parentIndex)
	return v.Addr().Interface().(Model), true
}

// PK 返回模型实例的主键值。
// 自身未声明主键时沿父模型链继承（子表与父表共享主键）。
func (s *Schema) PK(m Model) any {
	if s.PKField == nil {
		if parent, ok := s.ParentValue(m); ok {
			return s.Parent.PK(parent)
		}
		return nil
	}
	return structValue(m).FieldByIndex(s.PKField.Index).Interface()
}

// PKIsZero 判断主键是否为零值。
func (s *Schema) PKIsZero(m Model) bool {
	if s.PKField == nil {
		if parent, ok := s.ParentValue(m); ok {
			return s.Parent.PKIsZero(parent)
		}
		return true
	}
	return structValue(m).FieldByIndex(s.PKField.Index).IsZero()
}

// SetPK 将主键值写入模型实例，必要时做类型转换。
// 自身未声明主键时写入父模型链上的主键字段。
func (s *Schema) SetPK(m Model, pk any) error {
	if s.PKField == nil {
		if parent, ok := s.ParentValue(m); ok {
			return s.Parent.SetPK(parent, pk)
		}
		return merr.WrapErrPkMissing(s.Label)
	}
	fv := structValue(m).FieldByIndex(s.PKField.Index)
	return s.assign(fv, s.PKField, pk)
}

// Values 将模型实例的本地字段编码为可移植的中间值。
//
// 返回值：
//   - pk     ：主键值。
//   - fields ：普通字段与外键字段，时间编码为 RFC3339Nano，字节串编码为 base64。
//   - m2m    ：多对多字段的主键列表。
func (s *Schema) Values(m Model) (pk any, fields map[string]any, m2m map[string][]any, err error) {
	v := structValue(m)
	pk = s.PK(m)
	fields = make(map[string]any, len(s.Fields))
	m2m = make(map[string][]any)

	for _, f := range s.Fields {
		fv := v.FieldByIndex(f.Index)
		switch f.Kind {
		case KindM2M:
			refs := make([]any, 0, fv.Len())
			for i := 0; i < fv.Len(); i++ {
				refs = append(refs, fv.Index(i).Interface())
			}
			m2m[f.Name] = refs
		default:
			fields[f.Name] = encodeScalar(fv.Interface())
		}
	}
	return pk, fields, m2m, nil
}

// Route 将原始字段映射按 Schema 拆分为普通字段与多对多字段。
// ignoreUnknown 为 false 时，未知字段名会返回 ErrFieldNotFound。
func (s *Schema) Route(raw map[string]any, ignoreUnknown bool) (map[string]any, map[string][]any, error) {
	fields := make(map[string]any, len(raw))
	m2m := make(map[string][]any)

	for name, val := range raw {
		f, ok := s.fieldByName[name]
		if !ok {
			if ignoreUnknown {
				continue
			}
			return nil, nil, merr.WrapErrFieldNotFound(s.Label, name)
		}
		if f.Kind == KindM2M {
			refs, err := toAnySlice(val)
			if err != nil {
				return nil, nil, merr.WrapErrFieldTypeMismatch(s.Label, name, err)
			}
			m2m[name] = refs
			continue
		}
		fields[name] = val
	}
	return fields, m2m, nil
}

// Apply 将已拆分的普通字段值写入模型实例，必要时做类型转换。
func (s *Schema) Apply(m Model, fields map[string]any, ignoreUnknown bool) error {
	v := structValue(m)
	for name, raw := range fields {
		f, ok := s.fieldByName[name]
		if !ok {
			if ignoreUnknown {
				continue
			}
			return merr.WrapErrFieldNotFound(s.Label, name)
		}
		if f.Kind == KindM2M {
			return merr.WrapErrFieldTypeMismatch(s.Label, name, errors.New("m2m field in plain field map"))
		}
		if err := s.assign(v.FieldByIndex(f.Index), f, raw); err != nil {
			return err
		}
	}
	return nil
}

// ApplyM2M 将多对多字段的主键列表写入模型实例。
func (s *Schema) ApplyM2M(m Model, name string, refs []any) error {
	f, ok := s.fieldByName[name]
	if !ok || f.Kind != KindM2M {
		return merr.WrapErrFieldNotFound(s.Label, name)
	}
	fv := structValue(m).FieldByIndex(f.Index)
	out := reflect.MakeSlice(f.Type, len(refs), len(refs))
	for i, ref := range refs {
		if err := s.assign(out.Index(i), f, ref); err != nil {
			return err
		}
	}
	fv.Set(out)
	return nil
}

// CoerceRef 将单个引用值转换为 m2m/fk 字段的元素类型。
func (s *Schema) CoerceRef(f *Field, ref any) (any, error) {
	t := f.Type
	if f.Kind == KindM2M {
		t = t.Elem()
	}
	out := reflect.New(t).Elem()
	if err := s.assign(out, f, ref); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func (s *Schema) assign(fv reflect.Value, f *Field, raw any) error {
	fail := func(err error) error {
		return merr.WrapErrFieldTypeMismatch(s.Label, f.Name, err)
	}

	t := fv.Type()
	if t == timeType {
		ts, err := cast.ToTimeE(raw)
		if err != nil {
			return fail(err)
		}
		fv.Set(reflect.ValueOf(ts))
		return nil
	}
	if t == bytesType {
		switch data := raw.(type) {
		case []byte:
			fv.SetBytes(append([]byte(nil), data...))
			return nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return fail(err)
			}
			fv.SetBytes(decoded)
			return nil
		case nil:
			fv.SetBytes(nil)
			return nil
		default:
			return fail(errors.Newf("cannot decode %T into []byte", raw))
		}
	}

	switch t.Kind() {
	case reflect.String:
		v, err := cast.ToStringE(raw)
		if err != nil {
			return fail(err)
		}
		fv.SetString(v)
	case reflect.Bool:
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return fail(err)
		}
		fv.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := cast.ToInt64E(raw)
		if err != nil {
			return fail(err)
		}
		if fv.OverflowInt(v) {
			return fail(errors.Newf("value %d overflows %s", v, t))
		}
		fv.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := cast.ToUint64E(raw)
		if err != nil {
			return fail(err)
		}
		if fv.OverflowUint(v) {
			return fail(errors.Newf("value %d overflows %s", v, t))
		}
		fv.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return fail(err)
		}
		fv.SetFloat(v)
	default:
		return merr.WrapErrFieldUnsupported(s.Label, f.Name, t.String())
	}
	return nil
}

func encodeScalar(val any) any {
	switch v := val.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	default:
		return val
	}
}

func toAnySlice(val any) ([]any, error) {
	if refs, ok := val.([]any); ok {
		return refs, nil
	}
	v := reflect.ValueOf(val)
	if !v.IsValid() || v.Kind() != reflect.Slice {
		return nil, errors.Newf("expect list, got %T", val)
	}
	out := make([]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		out = append(out, v.Index(i).Interface())
	}
	return out, nil
}

func structValue(m Model) reflect.Value {
	v := reflect.ValueOf(m)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v
}
