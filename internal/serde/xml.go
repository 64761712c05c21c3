package serde

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/spf13/cast"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

func init() {
	MustRegisterFormat(xmlFormat{})
}

// XML 流的元素与属性名。
const (
	xmlRootElem    = "zeusdata"
	xmlObjectElem  = "object"
	xmlFieldElem   = "field"
	xmlNaturalElem = "natural"
	xmlRefElem     = "ref"

	xmlVersionAttr = "version"
	xmlModelAttr   = "model"
	xmlPKAttr      = "pk"
	xmlNameAttr    = "name"
	xmlKindAttr    = "kind"
	xmlToAttr      = "to"
)

// xmlFormat 将记录写为带版本头的 XML 文档。
//
// 与 json/yaml 不同，XML 流保留字段类别：普通字段与外键为文本元素，
// 多对多字段展开为 <ref pk="..."/> 子元素列表。
type xmlFormat struct{}

func (xmlFormat) Name() string { return FormatXML }

func (xmlFormat) NewEmitter(w io.Writer, opts *Options) Emitter {
	enc := xml.NewEncoder(w)
	if opts.Indent {
		enc.Indent("", "  ")
	}
	return &xmlEmitter{enc: enc}
}

func (xmlFormat) NewParser(r io.Reader, opts *Options) (Parser, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, merr.WrapErrStreamMalformed(FormatXML, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != xmlRootElem {
			return nil, merr.WrapErrStreamMalformed(FormatXML, errMissingModel)
		}
		version := ""
		for _, a := range start.Attr {
			if a.Name.Local == xmlVersionAttr {
				version = a.Value
			}
		}
		if err := CheckStreamVersion(version); err != nil {
			return nil, err
		}
		return &xmlParser{dec: dec}, nil
	}
}

type xmlEmitter struct {
	enc *xml.Encoder
}

func (e *xmlEmitter) Begin() error {
	if err := e.enc.EncodeToken(xml.ProcInst{
		Target: "xml",
		Inst:   []byte(`version="1.0" encoding="utf-8"`),
	}); err != nil {
		return err
	}
	return e.enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: xmlRootElem},
		Attr: []xml.Attr{{Name: xml.Name{Local: xmlVersionAttr}, Value: StreamVersion.String()}},
	})
}

func (e *xmlEmitter) Emit(rec *Record) error {
	// 字段类别与引用目标来自 Schema，未注册模型退化为纯文本字段。
	var schema *model.Schema
	if s, err := model.Lookup(rec.Model); err == nil {
		schema = s
	}

	start := xml.StartElement{
		Name: xml.Name{Local: xmlObjectElem},
		Attr: []xml.Attr{{Name: xml.Name{Local: xmlModelAttr}, Value: rec.Model}},
	}
	if rec.PK != nil {
		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: xmlPKAttr},
			Value: cast.ToString(rec.PK),
		})
	}
	if err := e.enc.EncodeToken(start); err != nil {
		return err
	}

	for _, nv := range rec.Natural {
		if err := e.encodeText(xml.StartElement{Name: xml.Name{Local: xmlNaturalElem}}, cast.ToString(nv)); err != nil {
			return err
		}
	}

	for _, name := range rec.FieldOrder() {
		val, ok := rec.Fields[name]
		if !ok {
			continue
		}
		fieldStart := xml.StartElement{
			Name: xml.Name{Local: xmlFieldElem},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: xmlNameAttr}, Value: name},
				{Name: xml.Name{Local: xmlKindAttr}, Value: fieldKind(schema, name)},
			},
		}
		if ref := fieldRef(schema, name); ref != "" {
			fieldStart.Attr = append(fieldStart.Attr, xml.Attr{Name: xml.Name{Local: xmlToAttr}, Value: ref})
		}
		// 自然键形式的外键值展开为 <natural> 子元素。
		if refs, ok := val.([]any); ok {
			if err := e.enc.EncodeToken(fieldStart); err != nil {
				return err
			}
			for _, nv := range refs {
				if err := e.encodeText(xml.StartElement{Name: xml.Name{Local: xmlNaturalElem}}, cast.ToString(nv)); err != nil {
					return err
				}
			}
			if err := e.enc.EncodeToken(fieldStart.End()); err != nil {
				return err
			}
			continue
		}
		if err := e.encodeText(fieldStart, cast.ToString(val)); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(rec.M2M) {
		fieldStart := xml.StartElement{
			Name: xml.Name{Local: xmlFieldElem},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: xmlNameAttr}, Value: name},
				{Name: xml.Name{Local: xmlKindAttr}, Value: model.KindM2M.String()},
			},
		}
		if ref := fieldRef(schema, name); ref != "" {
			fieldStart.Attr = append(fieldStart.Attr, xml.Attr{Name: xml.Name{Local: xmlToAttr}, Value: ref})
		}
		if err := e.enc.EncodeToken(fieldStart); err != nil {
			return err
		}
		for _, pk := range rec.M2M[name] {
			refStart := xml.StartElement{
				Name: xml.Name{Local: xmlRefElem},
				Attr: []xml.Attr{{Name: xml.Name{Local: xmlPKAttr}, Value: cast.ToString(pk)}},
			}
			if err := e.enc.EncodeToken(refStart); err != nil {
				return err
			}
			if err := e.enc.EncodeToken(refStart.End()); err != nil {
				return err
			}
		}
		if err := e.enc.EncodeToken(fieldStart.End()); err != nil {
			return err
		}
	}

	return e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: xmlObjectElem}})
}

func (e *xmlEmitter) End() error {
	if err := e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: xmlRootElem}}); err != nil {
		return err
	}
	return e.enc.Flush()
}

func (e *xmlEmitter) encodeText(start xml.StartElement, text string) error {
	if err := e.enc.EncodeToken(start); err != nil {
		return err
	}
	if err := e.enc.EncodeToken(xml.CharData(text)); err != nil {
		return err
	}
	return e.enc.EncodeToken(start.End())
}

func fieldKind(schema *model.Schema, name string) string {
	if schema != nil {
		if f, ok := schema.FieldByName(name); ok {
			return f.Kind.String()
		}
	}
	return model.KindValue.String()
}

func fieldRef(schema *model.Schema, name string) string {
	if schema != nil {
		if f, ok := schema.FieldByName(name); ok {
			return f.Ref
		}
	}
	return ""
}

type xmlParser struct {
	dec *xml.Decoder
}

func (p *xmlParser) Next() (*Record, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, merr.WrapErrStreamMalformed(FormatXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == xmlObjectElem {
				return p.parseObject(t)
			}
			if err := p.dec.Skip(); err != nil {
				return nil, merr.WrapErrStreamMalformed(FormatXML, err)
			}
		case xml.EndElement:
			if t.Name.Local == xmlRootElem {
				return nil, io.EOF
			}
		}
	}
}

func (p *xmlParser) parseObject(start xml.StartElement) (*Record, error) {
	rec := &Record{
		Fields: make(map[string]any),
		M2M:    make(map[string][]any),
	}
	for _, a := range start.Attr {
		switch a.Name.Local {
		case xmlModelAttr:
			rec.Model = a.Value
		case xmlPKAttr:
			rec.PK = a.Value
		}
	}
	if rec.Model == "" {
		return nil, merr.WrapErrRecordCorrupted("", errMissingModel)
	}

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, merr.WrapErrStreamMalformed(FormatXML, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case xmlNaturalElem:
				var s string
				if err := p.dec.DecodeElement(&s, &t); err != nil {
					return nil, merr.WrapErrStreamMalformed(FormatXML, err)
				}
				rec.Natural = append(rec.Natural, s)
			case xmlFieldElem:
				if err := p.parseField(t, rec); err != nil {
					return nil, err
				}
			default:
				if err := p.dec.Skip(); err != nil {
					return nil, merr.WrapErrStreamMalformed(FormatXML, err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == xmlObjectElem {
				return rec, nil
			}
		}
	}
}

func (p *xmlParser) parseField(start xml.StartElement, rec *Record) error {
	name, kind := "", ""
	for _, a := range start.Attr {
		switch a.Name.Local {
		case xmlNameAttr:
			name = a.Value
		case xmlKindAttr:
			kind = a.Value
		}
	}
	if name == "" {
		return merr.WrapErrRecordCorrupted(rec.Model, errMissingFieldName)
	}

	if kind != model.KindM2M.String() {
		return p.parseValueField(name, rec)
	}

	refs := make([]any, 0)
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return merr.WrapErrStreamMalformed(FormatXML, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == xmlRefElem {
				for _, a := range t.Attr {
					if a.Name.Local == xmlPKAttr {
						refs = append(refs, a.Value)
					}
				}
			}
			if err := p.dec.Skip(); err != nil {
				return merr.WrapErrStreamMalformed(FormatXML, err)
			}
		case xml.EndElement:
			if t.Name.Local == xmlFieldElem {
				rec.M2M[name] = refs
				return nil
			}
		}
	}
}

// parseValueField 解析普通字段或外键字段：
// 带 <natural> 子元素的外键还原为自然键列表，否则取元素文本。
func (p *xmlParser) parseValueField(name string, rec *Record) error {
	var text strings.Builder
	var natural []any
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return merr.WrapErrStreamMalformed(FormatXML, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if natural == nil {
				text.Write(t)
			}
		case xml.StartElement:
			if t.Name.Local == xmlNaturalElem {
				var s string
				if err := p.dec.DecodeElement(&s, &t); err != nil {
					return merr.WrapErrStreamMalformed(FormatXML, err)
				}
				natural = append(natural, s)
				continue
			}
			if err := p.dec.Skip(); err != nil {
				return merr.WrapErrStreamMalformed(FormatXML, err)
			}
		case xml.EndElement:
			if t.Name.Local == xmlFieldElem {
				if natural != nil {
					rec.Fields[name] = natural
				} else {
					rec.Fields[name] = text.String()
				}
				return nil
			}
		}
	}
}
