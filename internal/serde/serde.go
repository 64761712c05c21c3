// Package serde 实现模型实例与可移植 fixture 流之间的互转。
//
// 核心概念：
//   - Format  ：按名称注册的编解码格式（json/jsonl/xml/yaml/native/pb）。
//   - Record  ：对象的中间表示，遍历与落盘解耦。
//   - Emitter ：流式写出，一次一条记录，面向任意 io.Writer。
//   - Parser  ：流式读入，一次一条记录，面向任意 io.Reader。
//
// 反序列化只构造未保存的内存对象（DeserializedObject），
// 持久化由调用方对每个对象显式调用 Save 完成，
// 在此之前整个过程保证不会触碰任何存储。
package serde

import (
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
)

var (
	errMissingModel     = errors.New("record missing model label")
	errMissingFieldName = errors.New("field missing name attribute")
)

// Emitter 为格式的写出端。
// 调用序列：Begin，零或多次 Emit，最后 End。
type Emitter interface {
	// Begin 写出流头部（版本信息等）。
	Begin() error

	// Emit 写出一条记录。
	Emit(rec *Record) error

	// End 写出流尾部并刷新缓冲。
	End() error
}

// Parser 为格式的读入端。
//
// Next 逐条返回记录，流正常结束时返回 io.EOF。
type Parser interface {
	Next() (*Record, error)
}

// Format 抽象一种具名的序列化格式。
//
// 实现必须是无状态的；Emitter/Parser 承载单次流的全部状态。
type Format interface {
	// Name 返回格式注册名。
	Name() string

	// NewEmitter 创建面向 w 的写出端。
	NewEmitter(w io.Writer, opts *Options) Emitter

	// NewParser 创建面向 r 的读入端。
	// 头部校验失败（版本不兼容等）在首次 Next 或此处返回。
	NewParser(r io.Reader, opts *Options) (Parser, error)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}
