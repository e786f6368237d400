// Package cmdutil holds the config, logger and store wiring shared by the
// chatstream subcommands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/storage"
	storageutils "github.com/papercomputeco/chatstream/pkg/storage/utils"
)

// StoreFlags are the registry keys every store backed command binds.
var StoreFlags = []string{config.FlagStorage, config.FlagSQLite, config.FlagPostgres}

// Settings is the merged configuration for one command invocation.
type Settings struct {
	Config    *config.Config
	Configer  *config.Configer
	ConfigDir string
	Debug     bool
}

// AddStoreFlags registers --storage, --sqlite and --postgres on cmd.
func AddStoreFlags(cmd *cobra.Command, s *config.StorageConfig) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorage, &s.Driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &s.SQLitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &s.PostgresDSN)
}

// Load merges flags, CHATSTREAM_* environment variables, config.toml and
// defaults for the given flag registry keys.
func Load(cmd *cobra.Command, flagKeys ...string) (*Settings, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &Settings{
		Config:    config.FromViper(v),
		Configer:  cfger,
		ConfigDir: configDir,
		Debug:     debug,
	}, nil
}

// Logger returns a pretty logger writing to w. Without --debug only
// warnings and errors are shown when quiet is set.
func (s *Settings) Logger(w io.Writer, quiet bool) *slog.Logger {
	if quiet && !s.Debug {
		return logger.New(logger.WithWriter(w), logger.WithPretty(true), logger.WithLevel(slog.LevelWarn))
	}
	return logger.New(logger.WithWriter(w), logger.WithPretty(true), logger.WithDebug(s.Debug))
}

// OpenStore opens the configured conversation store. An unset SQLite path
// resolves to conversations.db in the .chatstream/ directory.
func (s *Settings) OpenStore(ctx context.Context, log *slog.Logger) (storage.Driver, error) {
	return storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		Driver:      s.Config.Storage.Driver,
		SQLitePath:  s.Configer.SQLitePath(s.Config),
		PostgresDSN: s.Config.Storage.PostgresDSN,
		Logger:      log,
	})
}
