package chatcmder

import (
	"bytes"
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chatclient"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/session"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chatstream/pkg/utils/test"
)

var _ = Describe("NewChatCmd", func() {
	It("registers the client and store flags", func() {
		cmd := NewChatCmd()
		for _, name := range []string{"proxy-target", "storage", "sqlite", "postgres", "new", "conversation"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("proxy-target").DefValue).To(Equal("http://localhost:8080"))
	})
})

var _ = Describe("repl", func() {
	var (
		ctx    context.Context
		store  *inmemory.Driver
		sender *chatclient.StaticSender
		out    *bytes.Buffer
		errOut *bytes.Buffer
		r      *repl
	)

	newRepl := func(input string) *repl {
		r := &repl{
			in:        strings.NewReader(input),
			out:       out,
			errOut:    errOut,
			store:     store,
			dd:        dotdir.NewManager(),
			configDir: GinkgoT().TempDir(),
			convID:    "conv-1",
		}
		r.ctl = session.New(sender, store, logger.Nop(), session.WithUpdateHook(r.onUpdate))
		return r
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		sender = &chatclient.StaticSender{
			Events: []llm.StreamEvent{{Content: "Hel"}, {Content: "lo"}, {Done: true}},
		}
		out = &bytes.Buffer{}
		errOut = &bytes.Buffer{}
	})

	It("streams each reply and stores the conversation", func() {
		r = newRepl("hi there\n")
		Expect(r.run(ctx)).To(Succeed())

		Expect(out.String()).To(Equal("Hello\n"))

		conv, err := store.Get(ctx, "conv-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Messages).To(HaveLen(2))
		Expect(conv.Messages[0].Content).To(Equal("hi there"))
		Expect(conv.Messages[1].Content).To(Equal("Hello"))
		Expect(conv.Title).To(Equal("hi there"))
	})

	It("records the active conversation", func() {
		r = newRepl("hi\n")
		Expect(r.run(ctx)).To(Succeed())

		active, err := r.dd.LoadActiveConversation(r.configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(active.ConversationID).To(Equal("conv-1"))
	})

	It("ignores blank lines and stops at /exit", func() {
		r = newRepl("\n   \n/exit\nnever sent\n")
		Expect(r.run(ctx)).To(Succeed())

		Expect(sender.Requests()).To(BeEmpty())
	})

	It("starts a new conversation on /new", func() {
		r = newRepl("first\n/new\nsecond\n")
		Expect(r.run(ctx)).To(Succeed())

		reqs := sender.Requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[1].ConversationID).NotTo(Equal("conv-1"))
		Expect(reqs[1].Messages).To(HaveLen(1))
	})

	It("regenerates the last reply", func() {
		r = newRepl("question\n/regenerate\n")
		Expect(r.run(ctx)).To(Succeed())

		reqs := sender.Requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[1].Signals).NotTo(BeNil())
		Expect(reqs[1].Signals.Regenerate).To(BeTrue())
		Expect(reqs[1].ResponseMessageID).To(Equal(reqs[0].ResponseMessageID))

		conv, err := store.Get(ctx, "conv-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Messages).To(HaveLen(2))
	})

	It("reports when there is nothing to regenerate", func() {
		r = newRepl("/regenerate\n")
		Expect(r.run(ctx)).To(Succeed())

		Expect(errOut.String()).To(ContainSubstring(errNothingToRegenerate.Error()))
		Expect(sender.Requests()).To(BeEmpty())
	})

	It("prints the history", func() {
		Expect(store.Put(ctx, testutils.NewTestConversation("conv-1", storage.Now(), "the question", "the answer"))).To(Succeed())

		r = newRepl("/history\n")
		Expect(r.run(ctx)).To(Succeed())

		Expect(out.String()).To(ContainSubstring("the question"))
		Expect(out.String()).To(ContainSubstring("the answer"))
	})

	It("warns on an empty reply", func() {
		sender.Events = []llm.StreamEvent{{Done: true}}
		r = newRepl("hi\n")
		Expect(r.run(ctx)).To(Succeed())

		Expect(errOut.String()).To(ContainSubstring(session.ErrNoResponse.Error()))
	})

	It("reports send failures and keeps reading", func() {
		sender.Err = errors.New("connection refused")
		r = newRepl("one\ntwo\n")
		Expect(r.run(ctx)).To(Succeed())

		Expect(strings.Count(errOut.String(), "connection refused")).To(Equal(2))
	})

	It("returns when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		r = newRepl("")
		r.in = blockingReader{}
		Expect(r.run(cctx)).To(Succeed())
	})
})

var _ = Describe("resolveConversation", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		r     *repl
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		r = &repl{store: store, dd: dotdir.NewManager(), configDir: GinkgoT().TempDir()}
	})

	It("prefers an explicit id", func() {
		id, err := (&chatCommander{conversationID: "given"}).resolveConversation(ctx, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("given"))
	})

	It("resumes the active conversation when it still exists", func() {
		Expect(store.Put(ctx, testutils.NewTestConversation("kept", storage.Now(), "q"))).To(Succeed())
		Expect(r.dd.SaveActiveConversation(&dotdir.ActiveConversation{ConversationID: "kept"}, r.configDir)).To(Succeed())

		id, err := (&chatCommander{}).resolveConversation(ctx, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("kept"))
	})

	It("starts fresh when the active conversation is gone", func() {
		Expect(r.dd.SaveActiveConversation(&dotdir.ActiveConversation{ConversationID: "gone"}, r.configDir)).To(Succeed())

		id, err := (&chatCommander{}).resolveConversation(ctx, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())
		Expect(id).NotTo(Equal("gone"))
	})

	It("ignores the active conversation with --new", func() {
		Expect(store.Put(ctx, testutils.NewTestConversation("kept", storage.Now(), "q"))).To(Succeed())
		Expect(r.dd.SaveActiveConversation(&dotdir.ActiveConversation{ConversationID: "kept"}, r.configDir)).To(Succeed())

		id, err := (&chatCommander{fresh: true}).resolveConversation(ctx, r)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(Equal("kept"))
	})
})

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}
