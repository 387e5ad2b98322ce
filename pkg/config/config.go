package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Engine    EngineConfig    `json:"engine"`
	Catalog   CatalogConfig   `json:"catalog"`
	Store     StoreConfig     `json:"store"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Broadcast BroadcastConfig `json:"broadcast"`
	mu        sync.RWMutex
}

type EngineConfig struct {
	Provider              string `json:"provider" env:"REPCUE_ENGINE_PROVIDER"`
	Model                 string `json:"model" env:"REPCUE_ENGINE_MODEL"`
	SemanticTimeoutMS     int    `json:"semantic_timeout_ms" env:"REPCUE_ENGINE_SEMANTIC_TIMEOUT_MS"`
	SemanticEnabled       bool   `json:"semantic_enabled" env:"REPCUE_ENGINE_SEMANTIC_ENABLED"`
	SemanticRatePerSecond int    `json:"semantic_rate_per_second" env:"REPCUE_ENGINE_SEMANTIC_RATE_PER_SECOND"`
	SemanticSliceSize     int    `json:"semantic_slice_size" env:"REPCUE_ENGINE_SEMANTIC_SLICE_SIZE"`
	MaxCandidates         int    `json:"max_candidates" env:"REPCUE_ENGINE_MAX_CANDIDATES"`
	MailboxSize           int    `json:"mailbox_size" env:"REPCUE_ENGINE_MAILBOX_SIZE"`
	IdleReaperCron        string `json:"idle_reaper_cron" env:"REPCUE_ENGINE_IDLE_REAPER_CRON"`
	IdleWorkerMinutes     int    `json:"idle_worker_minutes" env:"REPCUE_ENGINE_IDLE_WORKER_MINUTES"`
	TemplatesPath         string `json:"templates_path" env:"REPCUE_ENGINE_TEMPLATES_PATH"`
}

type CatalogConfig struct {
	Path            string `json:"path" env:"REPCUE_CATALOG_PATH"`
	RefreshSeconds  int    `json:"refresh_seconds" env:"REPCUE_CATALOG_REFRESH_SECONDS"`
	SeedStoreOnBoot bool   `json:"seed_store_on_boot" env:"REPCUE_CATALOG_SEED_STORE_ON_BOOT"`
}

type StoreConfig struct {
	Path string `json:"path" env:"REPCUE_STORE_PATH"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"REPCUE_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"REPCUE_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"REPCUE_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ProvidersConfig struct {
	OpenRouter ProviderConfig       `json:"openrouter"`
	OpenAI     OpenAIProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"REPCUE_PROVIDERS_OPENROUTER_API_KEY"`
	APIBase string `json:"api_base" env:"REPCUE_PROVIDERS_OPENROUTER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"REPCUE_PROVIDERS_OPENROUTER_PROXY"`
}

type OpenAIProviderConfig struct {
	APIKey       string `json:"api_key" env:"REPCUE_PROVIDERS_OPENAI_API_KEY"`
	APIBase      string `json:"api_base" env:"REPCUE_PROVIDERS_OPENAI_API_BASE"`
	Organization string `json:"organization,omitempty" env:"REPCUE_PROVIDERS_OPENAI_ORGANIZATION"`
}

type GatewayConfig struct {
	Host           string              `json:"host" env:"REPCUE_GATEWAY_HOST"`
	Port           int                 `json:"port" env:"REPCUE_GATEWAY_PORT"`
	AllowedOrigins FlexibleStringSlice `json:"allowed_origins" env:"REPCUE_GATEWAY_ALLOWED_ORIGINS"`
}

type BroadcastConfig struct {
	ListenerBuffer int `json:"listener_buffer" env:"REPCUE_BROADCAST_LISTENER_BUFFER"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Provider:              "openrouter",
			Model:                 "openai/gpt-4o-mini",
			SemanticTimeoutMS:     4000,
			SemanticEnabled:       true,
			SemanticRatePerSecond: 5,
			SemanticSliceSize:     40,
			MaxCandidates:         6,
			MailboxSize:           32,
			IdleReaperCron:        "*/5 * * * *",
			IdleWorkerMinutes:     30,
		},
		Catalog: CatalogConfig{
			Path:            "~/.repcue/catalog.yaml",
			RefreshSeconds:  300,
			SeedStoreOnBoot: true,
		},
		Store: StoreConfig{
			Path: "~/.repcue/state/repcue.db",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Providers: ProvidersConfig{
			OpenRouter: ProviderConfig{},
			OpenAI:     OpenAIProviderConfig{},
		},
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           18791,
			AllowedOrigins: FlexibleStringSlice{"*"},
		},
		Broadcast: BroadcastConfig{
			ListenerBuffer: 16,
		},
	}
}

// LoadConfig layers defaults, the JSON file at path, an optional .env next
// to the working directory, and REPCUE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Store.Path)
}

func (c *Config) CatalogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Catalog.Path)
}

func (c *Config) TemplatesPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Engine.TemplatesPath)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
