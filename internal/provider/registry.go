package provider

import (
	"fmt"
	"sort"
	"sync"
)

var globalRegistry = newRegistry()

type registry struct {
	mu      sync.RWMutex
	entries map[ID]Metadata
}

func newRegistry() *registry {
	return &registry{entries: make(map[ID]Metadata)}
}

// Register 将后端元数据加入全局注册表，重复键会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合后端 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的后端元数据，键会先经过 Normalize。
func Resolve(key string) (Metadata, bool) {
	return globalRegistry.resolve(Normalize(key))
}

// List 返回按键排序的后端元数据列表。
func List() []Metadata {
	return globalRegistry.list()
}

// Keys 返回所有已注册后端的键值，供配置校验与诊断使用。
func Keys() []ID {
	items := List()
	result := make([]ID, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

func (r *registry) register(meta Metadata) error {
	key := Normalize(string(meta.Key))
	if key == "" {
		return fmt.Errorf("provider key is required")
	}
	if meta.Factory == nil {
		return fmt.Errorf("provider %s: factory is required", key)
	}
	meta.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("provider %s already registered", key)
	}
	r.entries[key] = meta
	return nil
}

func (r *registry) resolve(key ID) (Metadata, bool) {
	if key == "" {
		return Metadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.entries[key]
	return meta, ok
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.entries[ID(key)])
	}
	return result
}
