package json

import (
	stdjson "encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

// 统一的 JSON 编解码入口，基于 bytedance/sonic。
//
// 说明：
//   - 使用 ConfigStd 保证与 encoding/json 行为兼容；
//   - 协议帧与 REST 响应体都应通过本包编解码，避免多套 JSON 实现并存。
var config = sonic.ConfigStd

// RawMessage 为延迟解码的原始 JSON 片段。
// 与 encoding/json 的 RawMessage 保持类型兼容，便于跨包传递。
type RawMessage = stdjson.RawMessage

func Marshal(v any) ([]byte, error) {
	return config.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return config.Unmarshal(data, v)
}

// NewDecoder 创建针对流式输入的解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return config.NewDecoder(r)
}

// NewEncoder 创建针对流式输出的编码器。
func NewEncoder(w io.Writer) sonic.Encoder {
	return config.NewEncoder(w)
}
