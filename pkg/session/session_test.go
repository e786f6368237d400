package session_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chatclient"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/session"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chatstream/pkg/utils/test"
)

// sequenceSender hands each request to the next sender in order.
type sequenceSender struct {
	mu      sync.Mutex
	senders []chatclient.Sender
}

func (s *sequenceSender) Send(ctx context.Context, traceID string, req *llm.ChatRequest) (*http.Response, error) {
	s.mu.Lock()
	next := s.senders[0]
	s.senders = s.senders[1:]
	s.mu.Unlock()
	return next.Send(ctx, traceID, req)
}

func counter() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id-" + strconv.Itoa(n)
	}
}

var _ = Describe("Controller", func() {
	var (
		ctx   context.Context
		store *testutils.FailingDriver
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewFailingDriver(inmemory.NewDriver())
	})

	messageContent := func(convID string, idx int) string {
		conv, err := store.Get(ctx, convID)
		if err != nil || len(conv.Messages) <= idx {
			return "<missing>"
		}
		return conv.Messages[idx].Content
	}

	Describe("Send", func() {
		It("streams the reply into the assistant message", func() {
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{
				{Content: "Hel"}, {Content: "lo"}, {Done: true},
			}}
			var updates []session.Update
			c := session.New(sender, store, logger.Nop(),
				session.WithIDGenerator(counter()),
				session.WithUpdateHook(func(u session.Update) { updates = append(updates, u) }),
			)

			res, err := c.Send(ctx, "c1", "  Say hello  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).To(Equal("Hello"))
			Expect(res.Warning).To(BeNil())
			Expect(res.Aborted).To(BeFalse())
			Expect(c.State()).To(Equal(session.StateCompleted))
			Expect(c.IsStreaming()).To(BeFalse())

			conv, err := store.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Title).To(Equal("Say hello"))
			Expect(conv.Messages).To(HaveLen(2))
			Expect(conv.Messages[0].Role).To(Equal(llm.RoleUser))
			Expect(conv.Messages[0].Content).To(Equal("Say hello"))
			Expect(conv.Messages[1].ID).To(Equal(res.AssistantMessageID))
			Expect(conv.Messages[1].Content).To(Equal("Hello"))

			Expect(store.ReplaceCount()).To(Equal(2))
			Expect(updates).To(HaveLen(2))
			Expect(updates[0].Delta).To(Equal("Hel"))
			Expect(updates[1].Content).To(Equal("Hello"))

			reqs := sender.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].ResponseMessageID).To(Equal(res.AssistantMessageID))
			Expect(reqs[0].IsRegenerate()).To(BeFalse())
			Expect(reqs[0].Messages).To(HaveLen(1))
			Expect(reqs[0].Messages[0].ID).To(Equal(res.UserMessageID))
		})

		It("sends prior non-empty messages before the new one", func() {
			conv := testutils.NewTestConversation("c1", "2024-01-01T00:00:00Z", "first", "", "second")
			Expect(store.Put(ctx, conv)).To(Succeed())

			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{{Content: "ok"}, {Done: true}}}
			c := session.New(sender, store, logger.Nop())

			_, err := c.Send(ctx, "c1", "third")
			Expect(err).NotTo(HaveOccurred())

			msgs := sender.Requests()[0].Messages
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].Content).To(Equal("first"))
			Expect(msgs[1].Content).To(Equal("second"))
			Expect(msgs[2].Content).To(Equal("third"))

			stored, err := store.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Title).To(Equal("Conversation c1"))
		})

		It("rejects blank input without sending", func() {
			sender := &chatclient.StaticSender{}
			c := session.New(sender, store, logger.Nop())

			_, err := c.Send(ctx, "c1", " \n\t ")
			Expect(err).To(MatchError(session.ErrEmptyInput))
			Expect(sender.Requests()).To(BeEmpty())
			Expect(c.State()).To(Equal(session.StateIdle))
		})

		It("warns and empties the message when no content arrives", func() {
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{{Done: true}}}
			c := session.New(sender, store, logger.Nop())

			res, err := c.Send(ctx, "c1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Warning).To(MatchError(session.ErrNoResponse))
			Expect(res.Content).To(BeEmpty())
			Expect(messageContent("c1", 1)).To(Equal(""))
			Expect(c.State()).To(Equal(session.StateCompleted))
			Expect(c.LastError()).To(BeNil())
		})

		It("ignores events for other messages", func() {
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{
				{MessageID: "other", Content: "X"},
				{Content: "A"},
				{MessageID: "other", Done: true},
				{Content: "B"},
				{Done: true},
			}}
			c := session.New(sender, store, logger.Nop())

			res, err := c.Send(ctx, "c1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).To(Equal("AB"))
			Expect(messageContent("c1", 1)).To(Equal("AB"))
		})

		It("surfaces endpoint failures", func() {
			sender := &chatclient.StaticSender{Status: http.StatusInternalServerError, Body: `{"message":"failure"}`}
			c := session.New(sender, store, logger.Nop())

			_, err := c.Send(ctx, "c1", "hello")
			Expect(err).To(MatchError("failure"))
			Expect(c.State()).To(Equal(session.StateFailed))
			Expect(c.LastError()).To(MatchError("failure"))
			Expect(c.IsStreaming()).To(BeFalse())
		})

		It("surfaces transport failures", func() {
			sender := &chatclient.StaticSender{Err: &llm.TransportError{Err: errors.New("connection refused")}}
			c := session.New(sender, store, logger.Nop())

			_, err := c.Send(ctx, "c1", "hello")
			Expect(llm.IsRetryable(err)).To(BeTrue())
			Expect(c.State()).To(Equal(session.StateFailed))
		})

		It("reports store failures as a warning", func() {
			store.FailReplace = true
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{{Content: "hi"}, {Done: true}}}
			c := session.New(sender, store, logger.Nop())

			res, err := c.Send(ctx, "c1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).To(Equal("hi"))
			Expect(errors.Is(res.Warning, testutils.ErrInjected)).To(BeTrue())
		})

		It("fails before sending when the messages cannot be stored", func() {
			store.FailAppend = true
			sender := &chatclient.StaticSender{}
			c := session.New(sender, store, logger.Nop())

			_, err := c.Send(ctx, "c1", "hello")
			Expect(errors.Is(err, testutils.ErrInjected)).To(BeTrue())
			Expect(sender.Requests()).To(BeEmpty())
		})
	})

	Describe("Stop", func() {
		It("aborts without an error and keeps the partial reply", func() {
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{{Content: "partial"}}, Hold: true}
			c := session.New(sender, store, logger.Nop())

			type outcome struct {
				res *session.Result
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				defer GinkgoRecover()
				res, err := c.Send(ctx, "c1", "hello")
				done <- outcome{res, err}
			}()

			Eventually(func() string { return messageContent("c1", 1) }).Should(Equal("partial"))
			Expect(c.IsStreaming()).To(BeTrue())

			c.Stop()
			Expect(c.IsStreaming()).To(BeFalse())

			var out outcome
			Eventually(done).Should(Receive(&out))
			Expect(out.err).NotTo(HaveOccurred())
			Expect(out.res.Aborted).To(BeTrue())
			Expect(out.res.Content).To(Equal("partial"))
			Expect(c.State()).To(Equal(session.StateAborted))
			Expect(c.LastError()).To(BeNil())
			Expect(c.IsStreaming()).To(BeFalse())
			Expect(messageContent("c1", 1)).To(Equal("partial"))
		})

		It("is a no-op when idle", func() {
			c := session.New(&chatclient.StaticSender{}, store, logger.Nop())
			c.Stop()
			Expect(c.State()).To(Equal(session.StateIdle))
		})

		It("treats a cancelled caller context as an abort", func() {
			sender := &chatclient.StaticSender{Hold: true}
			c := session.New(sender, store, logger.Nop())

			cctx, cancel := context.WithCancel(ctx)
			go func() {
				defer GinkgoRecover()
				Eventually(c.IsStreaming).Should(BeTrue())
				cancel()
			}()

			res, err := c.Send(cctx, "c1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Aborted).To(BeTrue())
			Expect(c.IsStreaming()).To(BeFalse())
		})

		It("is implied by starting another send", func() {
			first := &chatclient.StaticSender{Events: []llm.StreamEvent{{Content: "one"}}, Hold: true}
			second := &chatclient.StaticSender{Events: []llm.StreamEvent{{Content: "two"}, {Done: true}}}
			c := session.New(&sequenceSender{senders: []chatclient.Sender{first, second}}, store, logger.Nop())

			firstDone := make(chan *session.Result, 1)
			go func() {
				defer GinkgoRecover()
				res, err := c.Send(ctx, "c1", "first")
				Expect(err).NotTo(HaveOccurred())
				firstDone <- res
			}()
			Eventually(func() string { return messageContent("c1", 1) }).Should(Equal("one"))

			res, err := c.Send(ctx, "c1", "second")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).To(Equal("two"))

			var firstRes *session.Result
			Eventually(firstDone).Should(Receive(&firstRes))
			Expect(firstRes.Aborted).To(BeTrue())
			Expect(c.State()).To(Equal(session.StateCompleted))

			conv, err := store.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(4))
			Expect(conv.Messages[1].Content).To(Equal("one"))
			Expect(conv.Messages[3].Content).To(Equal("two"))
		})
	})

	Describe("Regenerate", func() {
		BeforeEach(func() {
			Expect(store.Put(ctx, testutils.NewTestConversation("c1", "2024-01-01T00:00:00Z",
				"question", "old answer", "follow up", "later answer"))).To(Succeed())
		})

		It("reuses the message id and sends only the preceding messages", func() {
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{{Content: "new "}, {Content: "answer"}, {Done: true}}}
			c := session.New(sender, store, logger.Nop())

			res, err := c.Regenerate(ctx, "c1", "c1-mb")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AssistantMessageID).To(Equal("c1-mb"))
			Expect(res.Content).To(Equal("new answer"))

			req := sender.Requests()[0]
			Expect(req.IsRegenerate()).To(BeTrue())
			Expect(req.ResponseMessageID).To(Equal("c1-mb"))
			Expect(req.Messages).To(HaveLen(1))
			Expect(req.Messages[0].Content).To(Equal("question"))

			conv, err := store.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(4))
			Expect(conv.Messages[1].Content).To(Equal("new answer"))
			Expect(conv.Messages[3].Content).To(Equal("later answer"))
		})

		It("clears the message when the new reply is empty", func() {
			sender := &chatclient.StaticSender{Events: []llm.StreamEvent{{Done: true}}}
			c := session.New(sender, store, logger.Nop())

			res, err := c.Regenerate(ctx, "c1", "c1-mb")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Warning).To(MatchError(session.ErrNoResponse))
			Expect(messageContent("c1", 1)).To(Equal(""))
		})

		It("rejects unknown messages", func() {
			c := session.New(&chatclient.StaticSender{}, store, logger.Nop())
			_, err := c.Regenerate(ctx, "c1", "nope")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("rejects user messages", func() {
			c := session.New(&chatclient.StaticSender{}, store, logger.Nop())
			_, err := c.Regenerate(ctx, "c1", "c1-ma")
			Expect(err).To(MatchError(session.ErrNotAssistantMessage))
		})
	})
})

var _ = Describe("State", func() {
	It("names every state", func() {
		Expect(session.StateIdle.String()).To(Equal("idle"))
		Expect(session.StateStreaming.String()).To(Equal("streaming"))
		Expect(session.StateFailed.String()).To(Equal("failed"))
		Expect(session.State(42).String()).To(Equal("unknown"))
	})

	It("is active only while a request is in flight", func() {
		Expect(session.StateRequesting.Active()).To(BeTrue())
		Expect(session.StateStreaming.Active()).To(BeTrue())
		Expect(session.StateAborted.Active()).To(BeFalse())
	})
})
