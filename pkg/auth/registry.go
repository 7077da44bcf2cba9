package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig names a validator and carries its settings as raw JSON.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

type ValidatorFactory func(config json.RawMessage) (Validator, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]ValidatorFactory)
)

// RegisterProvider makes a validator available under name. Provider packages
// call it from init.
func RegisterProvider(name string, factory ValidatorFactory) {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		panic("auth: RegisterProvider needs a name and a factory")
	}
	mu.Lock()
	factories[name] = factory
	mu.Unlock()
}

// NewValidator builds the validator named by providerConfig.Type.
func NewValidator(providerConfig ProviderConfig) (Validator, error) {
	mu.RLock()
	factory, ok := factories[providerConfig.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown auth provider %q (registered: %s)",
			providerConfig.Type, strings.Join(ListProviders(), ", "))
	}
	return factory(providerConfig.Config)
}

// Build marshals settings as the provider config and creates the validator.
func Build(providerType string, settings any) (Validator, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("auth provider %s: %w", providerType, err)
	}
	return NewValidator(ProviderConfig{Type: providerType, Config: raw})
}

// ListProviders returns the registered provider names in order.
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

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(token string) (*Claims, error)

func (f ValidatorFunc) Validate(token string) (*Claims, error) { return f(token) }
