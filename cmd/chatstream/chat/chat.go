// Package chatcmder provides the chat command, an interactive terminal chat
// client for a running chat endpoint.
package chatcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/chatclient"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/session"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

const chatLongDesc string = `Start an interactive chat session against a running chat endpoint.

Replies stream into the terminal as they arrive and every message is saved
to the conversation store. The last conversation is resumed on the next run
unless --new or --conversation is given.

While a reply is streaming, Ctrl+C stops it and keeps the partial text.
At the prompt, Ctrl+C or Ctrl+D exits.

Commands:
  /new          Start a new conversation
  /regenerate   Regenerate the last reply
  /history      Show the conversation so far
  /exit         Quit

Examples:
  chatstream chat
  chatstream chat --new
  chatstream chat --proxy-target http://localhost:9090 --storage memory`

const chatShortDesc string = "Interactive chat through the chat endpoint"

var chatFlags = append([]string{config.FlagProxyTarget}, cmdutil.StoreFlags...)

type chatCommander struct {
	proxyTarget    string
	store          config.StorageConfig
	fresh          bool
	conversationID string
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cmdutil.Load(cmd, chatFlags...)
			if err != nil {
				return err
			}
			return cmder.run(cmd, s)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagProxyTarget, &cmder.proxyTarget)
	cmdutil.AddStoreFlags(cmd, &cmder.store)
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new conversation instead of resuming")
	cmd.Flags().StringVarP(&cmder.conversationID, "conversation", "c", "", "Conversation id to resume")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command, s *cmdutil.Settings) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log := s.Logger(cmd.ErrOrStderr(), true)

	store, err := s.OpenStore(ctx, log)
	if err != nil {
		return err
	}
	defer store.Close()

	r := &repl{
		in:        cmd.InOrStdin(),
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		tty:       isTerminal(),
		store:     store,
		dd:        dotdir.NewManager(),
		configDir: s.ConfigDir,
	}

	client := chatclient.NewClient(s.Config.Client.ProxyTarget, nil, log)
	r.ctl = session.New(client, store, log, session.WithUpdateHook(r.onUpdate))

	r.convID, err = c.resolveConversation(ctx, r)
	if err != nil {
		return err
	}

	// Ctrl+C stops a streaming reply; at the prompt it exits.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		for {
			select {
			case <-sig:
				if r.ctl.IsStreaming() {
					r.ctl.Stop()
					continue
				}
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()

	return r.run(ctx)
}

func (c *chatCommander) resolveConversation(ctx context.Context, r *repl) (string, error) {
	switch {
	case c.conversationID != "":
		return c.conversationID, nil
	case c.fresh:
		return uuid.NewString(), nil
	}

	active, err := r.dd.LoadActiveConversation(r.configDir)
	if err != nil {
		return "", fmt.Errorf("loading active conversation: %w", err)
	}
	if active == nil {
		return uuid.NewString(), nil
	}

	if _, err := r.store.Get(ctx, active.ConversationID); err != nil {
		if storage.IsNotFound(err) {
			return uuid.NewString(), nil
		}
		return "", err
	}
	return active.ConversationID, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
