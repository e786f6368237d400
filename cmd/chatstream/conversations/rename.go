package conversationscmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

func newRenameCmd() *cobra.Command {
	return withStore(&cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Set a conversation title",
		Args:  cobra.MinimumNArgs(2),
	}, runRename)
}

func runRename(ctx context.Context, cmd *cobra.Command, _ *cmdutil.Settings, store storage.Driver, args []string) error {
	title := strings.TrimSpace(strings.Join(args[1:], " "))
	if title == "" {
		return errors.New("title cannot be empty")
	}

	if err := store.Rename(ctx, args[0], title); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Renamed %s to %s\n",
		cliui.SuccessMark, cliui.IDStyle.Render(args[0]), cliui.NameStyle.Render(title))
	return nil
}
