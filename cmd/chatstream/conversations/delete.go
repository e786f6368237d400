package conversationscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

func newDeleteCmd() *cobra.Command {
	return withStore(&cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
	}, runDelete)
}

func runDelete(ctx context.Context, cmd *cobra.Command, s *cmdutil.Settings, store storage.Driver, args []string) error {
	dd := dotdir.NewManager()
	active, err := dd.LoadActiveConversation(s.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading active conversation: %w", err)
	}

	for _, id := range args {
		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
		if active != nil && active.ConversationID == id {
			if err := dd.ClearActiveConversation(s.ConfigDir); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n", cliui.SuccessMark, cliui.IDStyle.Render(id))
	}
	return nil
}
