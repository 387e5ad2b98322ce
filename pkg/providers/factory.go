package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/repcue/pkg/config"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

type providerFactory struct {
	build    func(cfg *config.Config) (LLMProvider, error)
	validate func(cfg *config.Config) error
}

var (
	factoryMu       sync.RWMutex
	factories       = map[string]providerFactory{}
	registrationErr error
)

func RegisterFactory(name string, build func(cfg *config.Config) (LLMProvider, error), validate func(cfg *config.Config) error) {
	name = NormalizeProviderName(name)
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if build == nil {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory build func is required for %s", name))
		return
	}
	factories[name] = providerFactory{build: build, validate: validate}
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	providers := make([]string, 0, len(factories))
	for name := range factories {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

func NormalizeProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderOpenRouter
	}
	return name
}

func ActiveProviderName(cfg *config.Config) string {
	if cfg == nil {
		return ProviderOpenRouter
	}
	return NormalizeProviderName(cfg.Engine.Provider)
}

func ValidateProviderConfig(cfg *config.Config) error {
	factory, _, err := getFactory(cfg)
	if err != nil {
		return err
	}
	if factory.validate == nil {
		return nil
	}
	return factory.validate(cfg)
}

// ProviderConfigured reports whether the active provider has credentials.
func ProviderConfigured(cfg *config.Config) bool {
	return ValidateProviderConfig(cfg) == nil
}

func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	factory, _, err := getFactory(cfg)
	if err != nil {
		return nil, err
	}
	return factory.build(cfg)
}

func getFactory(cfg *config.Config) (providerFactory, string, error) {
	name := ActiveProviderName(cfg)

	factoryMu.RLock()
	defer factoryMu.RUnlock()
	if registrationErr != nil {
		return providerFactory{}, name, fmt.Errorf("provider registration failed: %w", registrationErr)
	}
	factory, ok := factories[name]
	if !ok {
		supported := make([]string, 0, len(factories))
		for n := range factories {
			supported = append(supported, n)
		}
		sort.Strings(supported)
		return providerFactory{}, name, fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(supported, ", "))
	}
	return factory, name, nil
}
