package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// DefaultSQLiteFile is the conversation database created in the
	// .chatstream/ directory when storage.sqlite_path is unset.
	DefaultSQLiteFile = "conversations.db"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetDir  string
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .chatstream/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetDir = target
	cfger.targetPath = path

	return cfger, nil
}

// orderedKeys lists the supported keys in TOML section order.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"proxy.listen",
	"proxy.provider",
	"proxy.max_message_length",
	"proxy.project",
	"upstream.url",
	"upstream.api_key",
	"upstream.model",
	"upstream.system_prompt",
	"upstream.timeout",
	"upstream.temperature",
	"upstream.max_tokens",
	"client.proxy_target",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
}

// ValidConfigKeys returns all supported configuration key names in a
// stable order matching the TOML section layout.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// IsSecretKey reports whether the value of key is masked when listed.
func IsSecretKey(key string) bool {
	return key == "upstream.api_key" || key == "storage.postgres_dsn"
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// SQLitePath returns the configured SQLite path, or conversations.db in the
// resolved .chatstream/ directory.
func (c *Configer) SQLitePath(cfg *Config) string {
	if cfg.Storage.SQLitePath != "" || c.targetDir == "" {
		return cfg.Storage.SQLitePath
	}
	return filepath.Join(c.targetDir, DefaultSQLiteFile)
}

// LoadConfig loads the configuration from config.toml in the target
// .chatstream/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = d.Version
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = d.Storage.Driver
	}

	if cfg.Proxy.Listen == "" {
		cfg.Proxy.Listen = d.Proxy.Listen
	}
	if cfg.Proxy.Provider == "" {
		cfg.Proxy.Provider = d.Proxy.Provider
	}
	if cfg.Proxy.MaxMessageLength == 0 {
		cfg.Proxy.MaxMessageLength = d.Proxy.MaxMessageLength
	}

	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = d.Upstream.URL
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = d.Upstream.Model
	}
	if cfg.Upstream.SystemPrompt == "" {
		cfg.Upstream.SystemPrompt = d.Upstream.SystemPrompt
	}
	if cfg.Upstream.Timeout == "" {
		cfg.Upstream.Timeout = d.Upstream.Timeout
	}
	if cfg.Upstream.Temperature == nil {
		cfg.Upstream.Temperature = d.Upstream.Temperature
	}
	if cfg.Upstream.MaxTokens == 0 {
		cfg.Upstream.MaxTokens = d.Upstream.MaxTokens
	}

	if cfg.Client.ProxyTarget == "" {
		cfg.Client.ProxyTarget = d.Client.ProxyTarget
	}

	if cfg.EventStream.Provider == "" {
		cfg.EventStream.Provider = d.EventStream.Provider
	}
	if cfg.EventStream.Topic == "" {
		cfg.EventStream.Topic = d.EventStream.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target
// .chatstream/ directory. The file may hold the API key, so it is written
// owner-only.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a default Config pointed at the named upstream.
// Supported presets: "nanogpt", "openai", "ollama".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "nanogpt":
		return cfg, nil

	case "openai":
		cfg.Upstream.URL = "https://api.openai.com/v1"
		cfg.Upstream.Model = "gpt-4o-mini"
		return cfg, nil

	case "ollama":
		// Ollama serves the OpenAI-compatible API under /v1 and streams
		// chunks the openai parser reads.
		cfg.Upstream.URL = "http://localhost:11434/v1"
		cfg.Upstream.Model = "llama3.2"
		cfg.Upstream.APIKey = "ollama"
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"nanogpt", "openai", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
