package config

import (
	"github.com/papercomputeco/chatstream/pkg/upstream"
	"github.com/papercomputeco/chatstream/proxy"
)

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

const (
	defaultProvider    = "openai"
	defaultProxyListen = ":8080"

	defaultClientProxyTarget = "http://localhost:8080"

	defaultEventStreamTopic = "chatstream.streams"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values. The SQLite path
// stays empty and resolves to conversations.db in the .chatstream/ dir.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: StorageSQLite,
		},
		Proxy: ProxyConfig{
			Listen:           defaultProxyListen,
			Provider:         defaultProvider,
			MaxMessageLength: proxy.DefaultMaxMessageLength,
		},
		Upstream: UpstreamConfig{
			URL:          upstream.DefaultURL,
			Model:        upstream.DefaultModel,
			SystemPrompt: upstream.DefaultSystemPrompt,
			Timeout:      upstream.DefaultTimeout.String(),
			Temperature:  Float64(upstream.DefaultTemperature),
			MaxTokens:    upstream.DefaultMaxTokens,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientProxyTarget,
		},
		EventStream: EventStreamConfig{
			Provider: EventStreamNop,
			Topic:    defaultEventStreamTopic,
		},
	}
}

// Float64 returns a pointer to f, for optional numeric settings.
func Float64(f float64) *float64 {
	return &f
}
