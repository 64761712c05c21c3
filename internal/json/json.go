package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// 统一使用与标准库行为兼容的 sonic 配置，
// 保证 map 按 key 排序、HTML 转义等行为与 encoding/json 一致。
var json = sonic.ConfigStd

var (
	// Marshal 将对象编码为 JSON 字节序列。
	Marshal = json.Marshal
	// Unmarshal 将 JSON 字节序列解码到目标对象。
	Unmarshal = json.Unmarshal
	// MarshalIndent 将对象编码为带缩进的 JSON 字节序列。
	MarshalIndent = json.MarshalIndent
)

type (
	// Encoder 为流式 JSON 编码器。
	Encoder = sonic.Encoder
	// Decoder 为流式 JSON 解码器。
	Decoder = sonic.Decoder
)

// NewEncoder 创建一个向 w 写入 JSON 的编码器。
func NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

// NewDecoder 创建一个从 r 读取 JSON 的解码器。
func NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
