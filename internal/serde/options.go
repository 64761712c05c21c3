package serde

import (
	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/typeutil"
)

// Options 控制单次序列化/反序列化的行为。
type Options struct {
	// Indent 为 true 时写出带缩进的文本（json/xml 生效）。
	Indent bool

	// Fields 为字段白名单；为 nil 时写出全部字段。
	// 主键不受白名单影响。
	Fields typeutil.FieldSet

	// NaturalPrimaryKeys 为 true 时，实现了 NaturalKeyed 的模型
	// 省略主键、改为写出自然键；配合 Resolver，
	// 指向 NaturalKeyed 目标的外键字段也改为写出目标的自然键。
	NaturalPrimaryKeys bool

	// Resolver 按 (label, pk) 取回被引用对象，
	// 供自然键模式下展开外键字段使用。为 nil 时外键保持主键形式。
	Resolver func(label string, pk any) (model.Model, error)

	// IgnoreNonExistent 为 true 时，反序列化忽略 Schema 中不存在的字段，
	// 否则返回 ErrFieldNotFound。
	IgnoreNonExistent bool
}

// Option 为 Options 的选项函数。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithIndent 控制是否写出带缩进的文本。
func WithIndent(v bool) Option {
	return func(o *Options) {
		o.Indent = v
	}
}

// WithFields 设置字段白名单。
func WithFields(names ...string) Option {
	return func(o *Options) {
		o.Fields = typeutil.NewFieldSet(names...)
	}
}

// WithNaturalPrimaryKeys 控制是否以自然键替代主键写出。
func WithNaturalPrimaryKeys(v bool) Option {
	return func(o *Options) {
		o.NaturalPrimaryKeys = v
	}
}

// WithResolver 设置外键目标对象的取回函数。
func WithResolver(fn func(label string, pk any) (model.Model, error)) Option {
	return func(o *Options) {
		o.Resolver = fn
	}
}

// WithIgnoreNonExistent 控制反序列化时是否忽略未知字段。
func WithIgnoreNonExistent(v bool) Option {
	return func(o *Options) {
		o.IgnoreNonExistent = v
	}
}
