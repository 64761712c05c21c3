package serde

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

func init() {
	MustRegisterFormat(yamlFormat{})
}

// streamDoc 为 yaml/native 共用的整文档形状：版本头加记录列表。
type streamDoc struct {
	Version string        `json:"version" yaml:"version"`
	Objects []*wireRecord `json:"objects" yaml:"objects"`
}

// yamlFormat 将整个流写为单个 YAML 文档。
// 文档级格式无法逐条落盘，Emit 仅累积，End 时一次写出。
type yamlFormat struct{}

func (yamlFormat) Name() string { return FormatYAML }

func (yamlFormat) NewEmitter(w io.Writer, opts *Options) Emitter {
	return &yamlEmitter{w: w}
}

func (yamlFormat) NewParser(r io.Reader, opts *Options) (Parser, error) {
	doc := &streamDoc{}
	if err := yaml.NewDecoder(r).Decode(doc); err != nil {
		if err == io.EOF {
			return &docParser{}, nil
		}
		return nil, merr.WrapErrStreamMalformed(FormatYAML, err)
	}
	if err := CheckStreamVersion(doc.Version); err != nil {
		return nil, err
	}
	return &docParser{objects: doc.Objects}, nil
}

type yamlEmitter struct {
	w    io.Writer
	objs []*wireRecord
}

func (e *yamlEmitter) Begin() error { return nil }

func (e *yamlEmitter) Emit(rec *Record) error {
	e.objs = append(e.objs, rec.wire())
	return nil
}

func (e *yamlEmitter) End() error {
	enc := yaml.NewEncoder(e.w)
	if err := enc.Encode(&streamDoc{
		Version: StreamVersion.String(),
		Objects: e.objs,
	}); err != nil {
		return err
	}
	return enc.Close()
}

// docParser 迭代一个已整体解码的文档。
type docParser struct {
	objects []*wireRecord
	next    int
}

func (p *docParser) Next() (*Record, error) {
	if p.next >= len(p.objects) {
		return nil, io.EOF
	}
	w := p.objects[p.next]
	p.next++
	return recordFromWire(w)
}
