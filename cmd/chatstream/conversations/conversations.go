// Package conversationscmder provides the conversations command for listing,
// exporting, importing, renaming and deleting stored conversations.
package conversationscmder

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

const conversationsLongDesc string = `Manage stored conversations.

Conversations are read from the configured store (storage.driver), which
defaults to conversations.db in the .chatstream/ directory.

Examples:
  chatstream conversations list
  chatstream conversations show 0b4f...
  chatstream conversations export -o backup.json
  chatstream conversations import backup.json
  chatstream conversations rename 0b4f... "Trip planning"
  chatstream conversations delete 0b4f...`

const conversationsShortDesc string = "Manage stored conversations"

func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   conversationsShortDesc,
		Long:    conversationsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

// storeRunner runs a subcommand against an open store.
type storeRunner func(ctx context.Context, cmd *cobra.Command, s *cmdutil.Settings, store storage.Driver, args []string) error

// withStore adds the store flags to cmd and opens the store around fn.
func withStore(cmd *cobra.Command, fn storeRunner) *cobra.Command {
	flags := &config.StorageConfig{}
	cmdutil.AddStoreFlags(cmd, flags)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		s, err := cmdutil.Load(cmd, cmdutil.StoreFlags...)
		if err != nil {
			return err
		}

		store, err := s.OpenStore(ctx, s.Logger(cmd.ErrOrStderr(), true))
		if err != nil {
			return err
		}
		defer store.Close()

		return fn(ctx, cmd, s, store, args)
	}
	return cmd
}
