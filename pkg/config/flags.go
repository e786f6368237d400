package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --storage
// on both "chatstream chat" and "chatstream conversations").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "upstream.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen           = "listen"
	FlagProvider         = "provider"
	FlagMaxMessageLength = "max-message-length"
	FlagProject          = "project"
	FlagUpstream         = "upstream"
	FlagAPIKey           = "api-key"
	FlagModel            = "model"
	FlagSystemPrompt     = "system-prompt"
	FlagTimeout          = "timeout"
	FlagMaxTokens        = "max-tokens"
	FlagProxyTarget      = "proxy-target"
	FlagStorage          = "storage"
	FlagSQLite           = "sqlite"
	FlagPostgres         = "postgres"
	FlagEventStream      = "eventstream"
	FlagKafkaBrokers     = "kafka-brokers"
	FlagKafkaTopic       = "kafka-topic"
)

// Flags is the registry shared by every chatstream command.
var Flags = FlagSet{
	FlagListen:           {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the chat endpoint to listen on"},
	FlagProvider:         {Name: "provider", Shorthand: "p", ViperKey: "proxy.provider", Description: "Upstream chunk parser (openai, besteffort)"},
	FlagMaxMessageLength: {Name: "max-message-length", ViperKey: "proxy.max_message_length", Description: "Maximum characters per chat message"},
	FlagProject:          {Name: "project", ViperKey: "proxy.project", Description: "Project tag for published stream events (default: git repository name)"},
	FlagUpstream:         {Name: "upstream", Shorthand: "u", ViperKey: "upstream.url", Description: "Upstream OpenAI-compatible API base URL"},
	FlagAPIKey:           {Name: "api-key", ViperKey: "upstream.api_key", Description: "Upstream API key (prefer CHATSTREAM_UPSTREAM_API_KEY)"},
	FlagModel:            {Name: "model", Shorthand: "m", ViperKey: "upstream.model", Description: "Upstream model id"},
	FlagSystemPrompt:     {Name: "system-prompt", ViperKey: "upstream.system_prompt", Description: "System prompt prepended to every request"},
	FlagTimeout:          {Name: "timeout", ViperKey: "upstream.timeout", Description: "Upstream request timeout"},
	FlagMaxTokens:        {Name: "max-tokens", ViperKey: "upstream.max_tokens", Description: "Maximum tokens per reply"},
	FlagProxyTarget:      {Name: "proxy-target", Shorthand: "t", ViperKey: "client.proxy_target", Description: "Chat endpoint URL"},
	FlagStorage:          {Name: "storage", Shorthand: "s", ViperKey: "storage.driver", Description: "Conversation store (sqlite, postgres, memory)"},
	FlagSQLite:           {Name: "sqlite", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite conversation database"},
	FlagPostgres:         {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string for the conversation store"},
	FlagEventStream:      {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Completed stream event publisher (nop, kafka)"},
	FlagKafkaBrokers:     {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagKafkaTopic:       {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for completed stream events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, key string, target *time.Duration) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper instance holding only NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
