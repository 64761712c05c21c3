package serde

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

func init() {
	MustRegisterFormat(pbFormat{})
}

// maxPBFrame 为单帧载荷上限，防御损坏的长度前缀。
const maxPBFrame = 16 << 20

// pbFormat 将记录写为长度前缀的 protobuf 帧序列：
// 4 字节大端载荷长度，随后是 structpb.Struct 编码的载荷。
// 首帧为版本头，其余帧每帧一条记录。
type pbFormat struct{}

func (pbFormat) Name() string { return FormatPB }

func (pbFormat) NewEmitter(w io.Writer, opts *Options) Emitter {
	return &pbEmitter{w: w}
}

func (pbFormat) NewParser(r io.Reader, opts *Options) (Parser, error) {
	p := &pbParser{r: r}
	header, err := p.readFrame()
	if err != nil {
		return nil, merr.WrapErrStreamMalformed(FormatPB, err)
	}
	version := cast.ToString(header.AsMap()["version"])
	if err := CheckStreamVersion(version); err != nil {
		return nil, err
	}
	return p, nil
}

type pbEmitter struct {
	w io.Writer
}

func (e *pbEmitter) Begin() error {
	header, err := structpb.NewStruct(map[string]any{
		"version": StreamVersion.String(),
	})
	if err != nil {
		return err
	}
	return e.writeFrame(header)
}

func (e *pbEmitter) Emit(rec *Record) error {
	w := rec.wire()
	payload := map[string]any{
		"model":  w.Model,
		"fields": w.Fields,
	}
	if w.PK != nil {
		payload["pk"] = w.PK
	}
	if len(w.Natural) > 0 {
		payload["natural"] = w.Natural
	}

	frame, err := structpb.NewStruct(payload)
	if err != nil {
		return merr.WrapErrRecordCorrupted(rec.Model, err)
	}
	return e.writeFrame(frame)
}

func (e *pbEmitter) End() error { return nil }

func (e *pbEmitter) writeFrame(msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(data)))
	if _, err := e.w.Write(head[:]); err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

type pbParser struct {
	r io.Reader
}

func (p *pbParser) Next() (*Record, error) {
	frame, err := p.readFrame()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, merr.WrapErrStreamMalformed(FormatPB, err)
	}

	m := frame.AsMap()
	w := &wireRecord{
		Model: cast.ToString(m["model"]),
		PK:    m["pk"],
	}
	if natural, ok := m["natural"].([]any); ok {
		w.Natural = natural
	}
	switch fields := m["fields"].(type) {
	case map[string]any:
		w.Fields = fields
	case nil:
		w.Fields = map[string]any{}
	default:
		return nil, merr.WrapErrStreamMalformed(FormatPB, errors.Newf("unexpected fields payload %T", fields))
	}
	return recordFromWire(w)
}

// readFrame 读取一个长度前缀帧，流干净结束时返回 io.EOF。
func (p *pbParser) readFrame() (*structpb.Struct, error) {
	var head [4]byte
	if _, err := io.ReadFull(p.r, head[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(head[:])
	if size > maxPBFrame {
		return nil, errors.Newf("frame size %d exceeds limit %d", size, maxPBFrame)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(p.r, payload); err != nil {
		return nil, err
	}

	frame := &structpb.Struct{}
	if err := proto.Unmarshal(payload, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
