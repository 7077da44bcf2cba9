package persistence

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

func TestRegisterProvider(t *testing.T) {
	RegisterProvider("test", func(config PluginConfig) (PluginPersistence, error) {
		return nil, nil
	})

	providers := ListProviders()
	if !sort.StringsAreSorted(providers) {
		t.Errorf("ListProviders() not sorted: %v", providers)
	}
	found := false
	for _, p := range providers {
		if p == "test" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected to find 'test' provider in list, got: %v", providers)
	}
}

func TestRegisterProviderRejectsEmptyName(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty provider name")
		}
	}()
	RegisterProvider("  ", func(PluginConfig) (PluginPersistence, error) { return nil, nil })
}

func TestNewPersistenceUnknownProvider(t *testing.T) {
	RegisterProvider("test", func(config PluginConfig) (PluginPersistence, error) {
		return nil, nil
	})
	_, err := NewPersistence(ProviderConfig{Type: "unknown_provider", Config: []byte("{}")}, PluginConfig{})
	if err == nil {
		t.Fatal("Expected error for unknown provider, got nil")
	}
	if !strings.Contains(err.Error(), "test") {
		t.Errorf("error should list registered providers: %v", err)
	}
}

func TestNewPersistenceDefaultsTimezone(t *testing.T) {
	var got PluginConfig
	RegisterProvider("capture", func(config PluginConfig) (PluginPersistence, error) {
		got = config
		return nil, nil
	})

	if _, err := NewPersistence(ProviderConfig{Type: "capture", Config: []byte(`{"a":1}`)}, PluginConfig{}); err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	if got.Timezone == nil {
		t.Error("Expected default timezone")
	}
	if string(got.Config) != `{"a":1}` {
		t.Errorf("Expected provider config to be passed through, got %s", got.Config)
	}

	if _, err := NewPersistence(ProviderConfig{Type: "capture"}, PluginConfig{}); err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	if string(got.Config) != "{}" {
		t.Errorf("missing config should become {}, got %s", got.Config)
	}
}

func TestOpenMarshalsSettings(t *testing.T) {
	var got PluginConfig
	RegisterProvider("open-capture", func(config PluginConfig) (PluginPersistence, error) {
		got = config
		return nil, nil
	})
	loc := time.FixedZone("BRT", -3*3600)
	settings := struct {
		Path string `json:"path"`
	}{Path: "/tmp/jobs.db"}

	if _, err := Open("open-capture", settings, loc); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got.Config) != `{"path":"/tmp/jobs.db"}` {
		t.Errorf("Config = %s", got.Config)
	}
	if got.Timezone != loc {
		t.Errorf("Timezone = %v", got.Timezone)
	}
}

func TestNewPersistenceWrapsFactoryError(t *testing.T) {
	RegisterProvider("broken", func(PluginConfig) (PluginPersistence, error) {
		return nil, errors.New("addr is required")
	})
	_, err := Open("broken", map[string]string{}, nil)
	if err == nil || err.Error() != "broken persistence: addr is required" {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name       string
		current    domain.JobStatus
		next       domain.JobStatus
		wantChange bool
		wantErr    error
	}{
		{"queued to processing", domain.StatusQueued, domain.StatusProcessing, true, nil},
		{"processing to done", domain.StatusProcessing, domain.StatusDone, true, nil},
		{"same status", domain.StatusProcessing, domain.StatusProcessing, false, nil},
		{"done stays done", domain.StatusDone, domain.StatusDone, false, nil},
		{"done to error", domain.StatusDone, domain.StatusError, false, ErrTerminal},
		{"error to processing", domain.StatusError, domain.StatusProcessing, false, ErrTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := CheckTransition(&domain.JobRecord{Status: tt.current}, tt.next)
			if change != tt.wantChange || !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckTransition() = %v, %v; want %v, %v", change, err, tt.wantChange, tt.wantErr)
			}
		})
	}
}
