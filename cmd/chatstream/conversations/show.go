package conversationscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

func newShowCmd() *cobra.Command {
	return withStore(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
	}, runShow)
}

func runShow(ctx context.Context, cmd *cobra.Command, _ *cmdutil.Settings, store storage.Driver, args []string) error {
	conv, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.NameStyle.Render(conv.Title), cliui.DimStyle.Render(conv.ID))
	for _, m := range conv.Messages {
		prompt := cliui.AssistantPrompt
		if m.Role == llm.RoleUser {
			prompt = cliui.UserPrompt
		}
		fmt.Fprintf(w, "%s%s\n\n", prompt, m.Content)
	}
	return nil
}
