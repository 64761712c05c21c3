package serde

import (
	"sync"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

// 内置格式的注册名。
const (
	FormatJSON   = "json"
	FormatJSONL  = "jsonl"
	FormatXML    = "xml"
	FormatYAML   = "yaml"
	FormatNative = "native"
	FormatPB     = "pb"
)

// formatRegistry 按名称维护已注册的格式。
// 注册通常发生在 init 阶段，查找可能高频并发，因此用读写锁保护。
type formatRegistry struct {
	mu      sync.RWMutex
	formats map[string]Format
}

var registry = &formatRegistry{
	formats: make(map[string]Format),
}

// RegisterFormat 注册一种格式。
// 重名注册返回 ErrFormatDuplicate。
func RegisterFormat(f Format) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.formats[f.Name()]; ok {
		return merr.WrapErrFormatDuplicate(f.Name())
	}
	registry.formats[f.Name()] = f
	return nil
}

// MustRegisterFormat 与 RegisterFormat 相同，失败时 panic。
// 内置格式在 init 中通过它注册。
func MustRegisterFormat(f Format) {
	if err := RegisterFormat(f); err != nil {
		panic(err)
	}
}

// UnregisterFormat 取消注册指定名称的格式。
func UnregisterFormat(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.formats, name)
}

// GetFormat 按名称查找格式。
// 未注册的名称返回 ErrFormatNotFound。
func GetFormat(name string) (Format, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	f, ok := registry.formats[name]
	if !ok {
		return nil, merr.WrapErrFormatNotFound(name)
	}
	return f, nil
}

// Formats 返回所有已注册格式的名称，按字典序排列。
func Formats() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return sortedKeys(registry.formats)
}
