package serde

import (
	"github.com/blang/semver/v4"
	"github.com/spf13/cast"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

// StreamVersion 为当前写出的 fixture 流版本号。
var StreamVersion = semver.MustParse("1.0.0")

// compatRange 为读取端可接受的流版本范围。
// 同一主版本内保证向后兼容，跨主版本拒绝加载。
var compatRange = semver.MustParseRange(">=1.0.0 <2.0.0")

const compatRangeText = ">=1.0.0 <2.0.0"

// CheckStreamVersion 校验流头部携带的版本号是否可被当前实现加载。
func CheckStreamVersion(version string) error {
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return merr.WrapErrVersionIncompatible(version, compatRangeText)
	}
	if !compatRange(v) {
		return merr.WrapErrVersionIncompatible(version, compatRangeText)
	}
	return nil
}

// Record 为对象的中间表示（"simple object" 形式），
// 也是所有格式编解码的统一输入输出。
//
// 一个 Record 只包含对应模型“本地声明”的字段；
// 嵌入父模型的字段存放在父模型标签下的独立 Record 中。
type Record struct {
	// Model 为模型标签，形如 "app.name"。
	Model string
	// PK 为主键值；使用自然键省略主键时为 nil。
	PK any
	// Natural 为自然键取值序列，未启用时为 nil。
	Natural []any
	// Fields 为普通字段与外键字段（已编码为可移植标量）。
	Fields map[string]any
	// M2M 为多对多字段的主键列表。
	M2M map[string][]any

	// order 为字段写出顺序（来自 Schema 的声明顺序）。
	// 解析端不恢复该信息。
	order []string
}

// Identity 返回记录的去重标识。
// 有主键时为 模型/主键；自然键形式为各分量的长度前缀编码，
// 不同的自然键即使分量拼接结果相同也不会共用标识。
func (r *Record) Identity() string {
	if r.PK != nil {
		return r.Model + "/" + cast.ToString(r.PK)
	}
	return r.Model + "#" + fingerprintKey(r.Natural)
}

// FieldOrder 返回普通字段的写出顺序。
// 序列化路径上为声明顺序，解析得到的记录退化为字典序。
func (r *Record) FieldOrder() []string {
	if r.order != nil {
		return r.order
	}
	return sortedKeys(r.Fields)
}

// wireRecord 为 json/yaml/native/pb 共用的线上形状，
// 多对多字段与普通字段合并存放于 fields 中。
type wireRecord struct {
	Model   string         `json:"model" yaml:"model"`
	PK      any            `json:"pk,omitempty" yaml:"pk,omitempty"`
	Natural []any          `json:"natural,omitempty" yaml:"natural,omitempty"`
	Fields  map[string]any `json:"fields" yaml:"fields"`
}

func (r *Record) wire() *wireRecord {
	fields := make(map[string]any, len(r.Fields)+len(r.M2M))
	for name, val := range r.Fields {
		fields[name] = val
	}
	for name, refs := range r.M2M {
		fields[name] = refs
	}
	return &wireRecord{
		Model:   r.Model,
		PK:      r.PK,
		Natural: r.Natural,
		Fields:  fields,
	}
}

func recordFromWire(w *wireRecord) (*Record, error) {
	if w.Model == "" {
		return nil, merr.WrapErrRecordCorrupted("", errMissingModel)
	}
	return &Record{
		Model:   w.Model,
		PK:      w.PK,
		Natural: w.Natural,
		Fields:  w.Fields,
		M2M:     make(map[string][]any),
	}, nil
}
