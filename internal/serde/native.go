package serde

import (
	"io"

	"github.com/lk2023060901/fixture-garden-go/internal/json"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

func init() {
	MustRegisterFormat(nativeFormat{})
}

// nativeFormat 将中间表示原样落为带版本头的 JSON 文档，
// 是 ToRecords/FromRecords 的持久化形态，加载时不做任何形状转换。
type nativeFormat struct{}

func (nativeFormat) Name() string { return FormatNative }

func (nativeFormat) NewEmitter(w io.Writer, opts *Options) Emitter {
	return &nativeEmitter{w: w, indent: opts.Indent}
}

func (nativeFormat) NewParser(r io.Reader, opts *Options) (Parser, error) {
	doc := &streamDoc{}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, merr.WrapErrStreamMalformed(FormatNative, err)
	}
	if err := CheckStreamVersion(doc.Version); err != nil {
		return nil, err
	}
	return &docParser{objects: doc.Objects}, nil
}

type nativeEmitter struct {
	w      io.Writer
	indent bool
	objs   []*wireRecord
}

func (e *nativeEmitter) Begin() error { return nil }

func (e *nativeEmitter) Emit(rec *Record) error {
	e.objs = append(e.objs, rec.wire())
	return nil
}

func (e *nativeEmitter) End() error {
	doc := &streamDoc{
		Version: StreamVersion.String(),
		Objects: e.objs,
	}

	var (
		data []byte
		err  error
	)
	if e.indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}
