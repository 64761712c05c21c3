package serde

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/fixture-garden-go/internal/json"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

func init() {
	MustRegisterFormat(jsonFormat{})
	MustRegisterFormat(jsonlFormat{})
}

// jsonFormat 将记录写为一个 JSON 数组，与主流 fixture 工具的输出互通。
// 流本身不携带版本头，数组即全部内容。
type jsonFormat struct{}

func (jsonFormat) Name() string { return FormatJSON }

func (jsonFormat) NewEmitter(w io.Writer, opts *Options) Emitter {
	return &jsonEmitter{w: w, indent: opts.Indent}
}

func (jsonFormat) NewParser(r io.Reader, opts *Options) (Parser, error) {
	return &jsonParser{
		iter: jsoniter.Parse(jsoniter.ConfigCompatibleWithStandardLibrary, r, 4096),
	}, nil
}

type jsonEmitter struct {
	w       io.Writer
	indent  bool
	emitted int
}

func (e *jsonEmitter) Begin() error {
	_, err := io.WriteString(e.w, "[")
	return err
}

func (e *jsonEmitter) Emit(rec *Record) error {
	var (
		data []byte
		err  error
	)
	if e.indent {
		data, err = json.MarshalIndent(rec.wire(), "  ", "  ")
	} else {
		data, err = json.Marshal(rec.wire())
	}
	if err != nil {
		return merr.WrapErrRecordCorrupted(rec.Model, err)
	}

	sep := ","
	if e.emitted == 0 {
		sep = ""
	}
	if e.indent {
		sep += "\n  "
	}
	if _, err := io.WriteString(e.w, sep); err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	e.emitted++
	return nil
}

func (e *jsonEmitter) End() error {
	tail := "]"
	if e.indent && e.emitted > 0 {
		tail = "\n]"
	}
	_, err := io.WriteString(e.w, tail)
	return err
}

type jsonParser struct {
	iter *jsoniter.Iterator
}

func (p *jsonParser) Next() (*Record, error) {
	if !p.iter.ReadArray() {
		if err := p.iter.Error; err != nil && err != io.EOF {
			return nil, merr.WrapErrStreamMalformed(FormatJSON, err)
		}
		return nil, io.EOF
	}

	w := &wireRecord{}
	p.iter.ReadVal(w)
	if err := p.iter.Error; err != nil && err != io.EOF {
		return nil, merr.WrapErrStreamMalformed(FormatJSON, err)
	}
	return recordFromWire(w)
}

// jsonlFormat 将记录写为行分隔 JSON，每行一条，适合追加与逐行处理。
type jsonlFormat struct{}

func (jsonlFormat) Name() string { return FormatJSONL }

func (jsonlFormat) NewEmitter(w io.Writer, opts *Options) Emitter {
	return &jsonlEmitter{enc: json.NewEncoder(w)}
}

func (jsonlFormat) NewParser(r io.Reader, opts *Options) (Parser, error) {
	return &jsonlParser{dec: json.NewDecoder(r)}, nil
}

type jsonlEmitter struct {
	enc json.Encoder
}

func (e *jsonlEmitter) Begin() error { return nil }

func (e *jsonlEmitter) Emit(rec *Record) error {
	if err := e.enc.Encode(rec.wire()); err != nil {
		return merr.WrapErrRecordCorrupted(rec.Model, err)
	}
	return nil
}

func (e *jsonlEmitter) End() error { return nil }

type jsonlParser struct {
	dec json.Decoder
}

func (p *jsonlParser) Next() (*Record, error) {
	if !p.dec.More() {
		return nil, io.EOF
	}
	w := &wireRecord{}
	if err := p.dec.Decode(w); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, merr.WrapErrStreamMalformed(FormatJSONL, err)
	}
	return recordFromWire(w)
}
