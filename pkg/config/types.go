package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Proxy       ProxyConfig       `toml:"proxy"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig selects the conversation store used by the chat client.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres", or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ProxyConfig holds chat endpoint settings.
type ProxyConfig struct {
	Listen           string `toml:"listen,omitempty"`
	Provider         string `toml:"provider,omitempty"`
	MaxMessageLength int    `toml:"max_message_length,omitempty"`

	// Project tags published stream events. Defaults to the git
	// repository name of the working directory.
	Project string `toml:"project,omitempty"`
}

// UpstreamConfig holds the completion provider settings.
type UpstreamConfig struct {
	URL          string `toml:"url,omitempty"`
	APIKey       string `toml:"api_key,omitempty"`
	Model        string `toml:"model,omitempty"`
	SystemPrompt string `toml:"system_prompt,omitempty"`
	Timeout      string `toml:"timeout,omitempty"`
	// Temperature is nil when unset so that an explicit 0 is kept.
	Temperature *float64 `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens,omitempty"`
}

// TimeoutDuration parses Timeout, returning 0 when it is unset or invalid.
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(u.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ClientConfig holds settings for CLI commands that connect to a running
// chat endpoint. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
}

// EventStreamConfig selects where completed stream events are published.
type EventStreamConfig struct {
	// Provider is "nop" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case StorageSQLite, StoragePostgres, StorageMemory:
				c.Storage.Driver = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.driver: %q (available: sqlite, postgres, memory)", v)
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"proxy.listen":             stringKey(func(c *Config) *string { return &c.Proxy.Listen }),
	"proxy.provider":           stringKey(func(c *Config) *string { return &c.Proxy.Provider }),
	"proxy.max_message_length": intKey("proxy.max_message_length", func(c *Config) *int { return &c.Proxy.MaxMessageLength }),
	"proxy.project":            stringKey(func(c *Config) *string { return &c.Proxy.Project }),

	"upstream.url":           stringKey(func(c *Config) *string { return &c.Upstream.URL }),
	"upstream.api_key":       stringKey(func(c *Config) *string { return &c.Upstream.APIKey }),
	"upstream.model":         stringKey(func(c *Config) *string { return &c.Upstream.Model }),
	"upstream.system_prompt": stringKey(func(c *Config) *string { return &c.Upstream.SystemPrompt }),
	"upstream.timeout": {
		get: func(c *Config) string { return c.Upstream.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for upstream.timeout: %w", err)
			}
			c.Upstream.Timeout = v
			return nil
		},
	},
	"upstream.temperature": {
		get: func(c *Config) string {
			if c.Upstream.Temperature == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Upstream.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for upstream.temperature: %w", err)
			}
			c.Upstream.Temperature = &f
			return nil
		},
	},
	"upstream.max_tokens": intKey("upstream.max_tokens", func(c *Config) *int { return &c.Upstream.MaxTokens }),

	"client.proxy_target": stringKey(func(c *Config) *string { return &c.Client.ProxyTarget }),

	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNop, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			}
			return fmt.Errorf("invalid value for eventstream.provider: %q (available: nop, kafka)", v)
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = SplitList(v)
			return nil
		},
	},
	"eventstream.topic": stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
