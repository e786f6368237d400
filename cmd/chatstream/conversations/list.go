package conversationscmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

func newListCmd() *cobra.Command {
	return withStore(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently updated first",
		Args:    cobra.NoArgs,
	}, runList)
}

func runList(ctx context.Context, cmd *cobra.Command, _ *cmdutil.Settings, store storage.Driver, _ []string) error {
	convs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No conversations yet."))
		return nil
	}

	for _, c := range convs {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.IDStyle.Render(c.ID),
			cliui.NameStyle.Render(utils.Truncate(c.Title, 48)),
			cliui.DimStyle.Render(fmt.Sprintf("%d messages, %s", len(c.Messages), displayTime(c.UpdatedAt))),
		)
	}
	return nil
}

func displayTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04")
}
