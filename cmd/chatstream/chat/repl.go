package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/session"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

var errNothingToRegenerate = errors.New("no reply to regenerate yet")

// repl reads prompts line by line and drives the session controller.
// Without a terminal it prints replies only, so it can be scripted.
type repl struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	tty    bool

	ctl       *session.Controller
	store     storage.Driver
	dd        *dotdir.Manager
	configDir string
	convID    string

	spinner  *cliui.Spinner
	streamed bool
}

func (r *repl) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	r.greet(ctx)

	for {
		r.prompt()

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			r.println()
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			r.println()
			select {
			case err := <-scanErr:
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
			default:
			}
			return nil
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			r.reset()
			continue
		case "/history":
			r.history(ctx)
			continue
		case "/regenerate":
			r.regenerate(ctx)
			continue
		case "/help":
			r.help()
			continue
		}

		r.begin()
		res, err := r.ctl.Send(ctx, r.convID, input)
		r.end(res, err)
	}
}

func (r *repl) greet(ctx context.Context) {
	if !r.tty {
		return
	}

	fmt.Fprintln(r.out)
	conv, err := r.store.Get(ctx, r.convID)
	if err == nil && len(conv.Messages) > 0 {
		fmt.Fprintf(r.out, "  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(utils.Truncate(conv.Title, 40)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.Messages))),
		)
		if last := lastAssistant(conv); last != nil && last.Content != "" {
			r.render(last.Content)
		}
	} else {
		fmt.Fprintf(r.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}
	fmt.Fprintf(r.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /help for commands, /exit or Ctrl+D to quit."))
}

func (r *repl) prompt() {
	if r.tty {
		fmt.Fprint(r.out, cliui.UserPrompt)
	}
}

func (r *repl) println() {
	if r.tty {
		fmt.Fprintln(r.out)
	}
}

func (r *repl) help() {
	fmt.Fprintln(r.out, "  /new          Start a new conversation")
	fmt.Fprintln(r.out, "  /regenerate   Regenerate the last reply")
	fmt.Fprintln(r.out, "  /history      Show the conversation so far")
	fmt.Fprintln(r.out, "  /exit         Quit")
}

func (r *repl) reset() {
	r.convID = uuid.NewString()
	if err := r.dd.ClearActiveConversation(r.configDir); err != nil {
		cliui.Warn(r.errOut, "clearing active conversation: %v", err)
	}
	if r.tty {
		fmt.Fprintf(r.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))
	}
}

func (r *repl) history(ctx context.Context) {
	conv, err := r.store.Get(ctx, r.convID)
	if storage.IsNotFound(err) {
		fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("No messages yet."))
		return
	}
	if err != nil {
		cliui.Fail(r.errOut, err)
		return
	}

	for _, m := range conv.Messages {
		if m.Role == llm.RoleUser {
			fmt.Fprintf(r.out, "%s%s\n", cliui.UserPrompt, m.Content)
			continue
		}
		fmt.Fprint(r.out, cliui.AssistantPrompt)
		r.render(m.Content)
	}
}

func (r *repl) regenerate(ctx context.Context) {
	conv, err := r.store.Get(ctx, r.convID)
	if err != nil && !storage.IsNotFound(err) {
		cliui.Fail(r.errOut, err)
		return
	}

	var last *llm.ChatMessage
	if conv != nil {
		last = lastAssistant(conv)
	}
	if last == nil {
		cliui.Fail(r.errOut, errNothingToRegenerate)
		return
	}

	r.begin()
	res, err := r.ctl.Regenerate(ctx, r.convID, last.ID)
	r.end(res, err)
}

// begin shows a spinner until the first delta arrives.
func (r *repl) begin() {
	r.streamed = false
	if r.tty {
		r.spinner = cliui.NewSpinner(r.errOut, "waiting for reply")
		r.spinner.Start()
	}
}

func (r *repl) stopSpinner() {
	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}
}

func (r *repl) onUpdate(u session.Update) {
	if !r.streamed {
		r.stopSpinner()
		if r.tty {
			fmt.Fprint(r.out, cliui.AssistantPrompt)
		}
		r.streamed = true
	}
	fmt.Fprint(r.out, u.Delta)
}

func (r *repl) end(res *session.Result, err error) {
	r.stopSpinner()
	if r.streamed {
		fmt.Fprintln(r.out)
	}

	if err != nil {
		cliui.Fail(r.errOut, err)
		return
	}

	switch {
	case res.Aborted:
		fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("(stopped)"))
	case res.Warning != nil:
		cliui.Warn(r.errOut, "%v", res.Warning)
	}
	if r.tty {
		fmt.Fprintln(r.out)
	}

	active := &dotdir.ActiveConversation{ConversationID: res.ConversationID, UpdatedAt: storage.Now()}
	if err := r.dd.SaveActiveConversation(active, r.configDir); err != nil {
		cliui.Warn(r.errOut, "saving active conversation: %v", err)
	}
}

func (r *repl) render(content string) {
	if !r.tty {
		fmt.Fprintln(r.out, content)
		return
	}
	out, err := cliui.RenderMarkdown(content)
	if err != nil {
		fmt.Fprintln(r.out, content)
		return
	}
	fmt.Fprint(r.out, out)
}

func lastAssistant(conv *llm.Conversation) *llm.ChatMessage {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == llm.RoleAssistant {
			return &conv.Messages[i]
		}
	}
	return nil
}
