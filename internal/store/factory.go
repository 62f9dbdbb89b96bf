package store

import (
	"fmt"
	"sort"
	"sync"
)

// Builder is a function that creates an adapter from config.
type Builder func(config Config) (Adapter, error)

// DefaultFactory maps store types to builders.
type DefaultFactory struct {
	builders map[string]Builder
	mu       sync.RWMutex
}

var globalFactory = &DefaultFactory{builders: make(map[string]Builder)}

func init() {
	RegisterStoreType("sqlite", func(config Config) (Adapter, error) {
		return NewSQLite(config)
	})
	RegisterStoreType("postgres", func(config Config) (Adapter, error) {
		return NewPostgres(config)
	})
	RegisterStoreType("postgresql", func(config Config) (Adapter, error) {
		return NewPostgres(config)
	})
	RegisterStoreType("sheet", func(config Config) (Adapter, error) {
		return NewSheet(config)
	})
	RegisterStoreType("memory", func(config Config) (Adapter, error) {
		return NewMemory(config), nil
	})
}

// RegisterStoreType registers a new store type with the global factory.
func RegisterStoreType(storeType string, builder Builder) {
	globalFactory.RegisterStoreType(storeType, builder)
}

// New creates an adapter using the global factory.
func New(config Config) (Adapter, error) {
	return globalFactory.New(config)
}

// SupportedTypes returns the registered store types.
func SupportedTypes() []string {
	return globalFactory.SupportedTypes()
}

func (f *DefaultFactory) RegisterStoreType(storeType string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[storeType] = builder
}

func (f *DefaultFactory) New(config Config) (Adapter, error) {
	f.mu.RLock()
	b, ok := f.builders[config.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported store type: %s (supported: %v)", config.Type, f.SupportedTypes())
	}
	return b(config)
}

func (f *DefaultFactory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.builders))
	for t := range f.builders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
