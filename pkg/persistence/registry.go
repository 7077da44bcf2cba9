package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProviderConfig names a job store and carries its settings as raw JSON.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// PluginConfig is what a factory receives.
type PluginConfig struct {
	Config json.RawMessage

	// Timezone stored timestamps are expressed in. Never nil once passed to
	// a factory.
	Timezone *time.Location
}

type PluginFactory func(config PluginConfig) (PluginPersistence, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]PluginFactory)
)

// RegisterProvider makes a job store available under name. Store packages
// call it from init; registering a name twice replaces the factory.
func RegisterProvider(name string, factory PluginFactory) {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		panic("persistence: RegisterProvider needs a name and a factory")
	}
	mu.Lock()
	factories[name] = factory
	mu.Unlock()
}

// NewPersistence builds the store named by providerConfig.Type.
func NewPersistence(providerConfig ProviderConfig, pluginConfig PluginConfig) (PluginPersistence, error) {
	mu.RLock()
	factory, ok := factories[providerConfig.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown persistence provider %q (registered: %s)",
			providerConfig.Type, strings.Join(ListProviders(), ", "))
	}

	pluginConfig.Config = providerConfig.Config
	if len(pluginConfig.Config) == 0 {
		pluginConfig.Config = json.RawMessage("{}")
	}
	if pluginConfig.Timezone == nil {
		pluginConfig.Timezone = time.UTC
	}
	p, err := factory(pluginConfig)
	if err != nil {
		return nil, fmt.Errorf("%s persistence: %w", providerConfig.Type, err)
	}
	return p, nil
}

// Open marshals settings (a store's Config struct) and builds the named store.
func Open(name string, settings any, tz *time.Location) (PluginPersistence, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("%s persistence: encode settings: %w", name, err)
	}
	return NewPersistence(ProviderConfig{Type: name, Config: raw}, PluginConfig{Timezone: tz})
}

// ListProviders returns the registered store names in order.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
