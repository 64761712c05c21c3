package model

import (
	"reflect"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

// registry 按标签维护已注册模型的 Schema。
// 与格式注册表一样，注册通常发生在进程启动阶段，查找则可能高频并发。
type registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

var global = &registry{
	schemas: make(map[string]*Schema),
}

// Register 注册一个模型原型。
// proto 应为指向结构体零值的指针，例如 &Article{}。
// 重复注册同一标签返回 ErrModelDuplicate。
func Register(proto Model) error {
	s, err := SchemaOf(proto)
	if err != nil {
		return err
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if _, ok := global.schemas[s.Label]; ok {
		return merr.WrapErrModelDuplicate(s.Label)
	}
	global.schemas[s.Label] = s
	return nil
}

// MustRegister 与 Register 相同，失败时 panic。
// 仅应在 init 或程序启动阶段使用。
func MustRegister(proto Model) {
	if err := Register(proto); err != nil {
		panic(err)
	}
}

// Unregister 取消注册指定标签的模型，主要用于测试。
func Unregister(label string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.schemas, label)
}

// Lookup 返回指定标签的模型 Schema。
func Lookup(label string) (*Schema, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	s, ok := global.schemas[label]
	if !ok {
		return nil, merr.WrapErrModelNotFound(label)
	}
	return s, nil
}

// New 按标签创建一个模型实例的零值（指针形式）。
func New(label string) (Model, error) {
	s, err := Lookup(label)
	if err != nil {
		return nil, err
	}
	return reflect.New(s.Type).Interface().(Model), nil
}

// Labels 返回所有已注册模型的标签，按字典序排列。
func Labels() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	labels := maps.Keys(global.schemas)
	sort.Strings(labels)
	return labels
}
