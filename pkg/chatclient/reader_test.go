package chatclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chatclient"
	"github.com/papercomputeco/chatstream/pkg/llm"
)

// trackingBody delivers chunks one Read at a time and counts Close calls.
type trackingBody struct {
	chunks []string
	err    error
	reads  atomic.Int32
	closes atomic.Int32
	closed chan struct{}
	block  bool
}

func newTrackingBody(chunks ...string) *trackingBody {
	return &trackingBody{chunks: chunks, closed: make(chan struct{})}
}

func (b *trackingBody) Read(p []byte) (int, error) {
	b.reads.Add(1)
	if len(b.chunks) == 0 {
		if b.block {
			<-b.closed
			return 0, errors.New("read on closed body")
		}
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if b.chunks[0] == "" {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *trackingBody) Close() error {
	if b.closes.Add(1) == 1 {
		close(b.closed)
	}
	return nil
}

func okResponse(body io.ReadCloser) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: body}
}

func collect(events *[]llm.StreamEvent) chatclient.Handler {
	return func(ev llm.StreamEvent) bool {
		*events = append(*events, ev)
		return false
	}
}

const (
	evA    = `data: {"conversationId":"c","messageId":"m","content":"A","done":false}` + "\n\n"
	evB    = `data: {"conversationId":"c","messageId":"m","content":"B","done":false}` + "\n\n"
	evC    = `data: {"conversationId":"c","messageId":"m","content":"C","done":false}` + "\n\n"
	evDone = `data: {"conversationId":"c","messageId":"m","done":true}` + "\n\n"
)

var _ = Describe("ReadStream", func() {
	It("delivers events in order", func() {
		body := newTrackingBody(evA + evB + evC + evDone)
		var events []llm.StreamEvent

		Expect(chatclient.ReadStream(context.Background(), okResponse(body), collect(&events))).To(Succeed())
		Expect(events).To(HaveLen(4))
		Expect(events[0].Content + events[1].Content + events[2].Content).To(Equal("ABC"))
		Expect(events[3].Done).To(BeTrue())
		Expect(body.closes.Load()).To(Equal(int32(1)))
	})

	It("reassembles events split at every offset", func() {
		stream := evA + ": comment\n\n" + evB + evC + evDone
		for i := 1; i < len(stream); i++ {
			var events []llm.StreamEvent
			body := newTrackingBody(stream[:i], stream[i:])
			Expect(chatclient.ReadStream(context.Background(), okResponse(body), collect(&events))).To(Succeed())
			Expect(events).To(HaveLen(4), "split at %d", i)
		}
	})

	It("normalizes CRLF line endings, even when split", func() {
		crlf := strings.ReplaceAll(evA+evDone, "\n", "\r\n")
		idx := strings.Index(crlf, "\r\n")
		body := newTrackingBody(crlf[:idx+1], crlf[idx+1:])

		var events []llm.StreamEvent
		Expect(chatclient.ReadStream(context.Background(), okResponse(body), collect(&events))).To(Succeed())
		Expect(events).To(HaveLen(2))
	})

	It("flushes a final event without a trailing boundary", func() {
		body := newTrackingBody(evA + strings.TrimSuffix(evDone, "\n\n"))

		var events []llm.StreamEvent
		Expect(chatclient.ReadStream(context.Background(), okResponse(body), collect(&events))).To(Succeed())
		Expect(events).To(HaveLen(2))
		Expect(events[1].Done).To(BeTrue())
	})

	It("stops immediately when the handler returns true", func() {
		body := newTrackingBody(evA+evB+evC, evDone)
		var events []llm.StreamEvent

		err := chatclient.ReadStream(context.Background(), okResponse(body), func(ev llm.StreamEvent) bool {
			events = append(events, ev)
			return true
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Content).To(Equal("A"))
		Expect(body.reads.Load()).To(Equal(int32(1)))
		Expect(body.closes.Load()).To(Equal(int32(1)))
	})

	It("rejects a non-2xx response with the extracted message", func() {
		body := newTrackingBody(`{"message":"failure"}`)
		resp := &http.Response{StatusCode: http.StatusInternalServerError, Body: body}

		err := chatclient.ReadStream(context.Background(), resp, collect(&[]llm.StreamEvent{}))
		Expect(err).To(MatchError("failure"))

		var ue *llm.UpstreamError
		Expect(errors.As(err, &ue)).To(BeTrue())
		Expect(ue.Status).To(Equal(http.StatusInternalServerError))
		Expect(body.closes.Load()).To(Equal(int32(1)))
	})

	DescribeTable("error message extraction",
		func(body string, expected string) {
			resp := &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(body))}
			err := chatclient.ReadStream(context.Background(), resp, collect(&[]llm.StreamEvent{}))
			Expect(err).To(MatchError(expected))
		},
		Entry("error string", `{"error":"bad input"}`, "bad input"),
		Entry("nested error message", `{"error":{"message":"nested"}}`, "nested"),
		Entry("raw text", "plain failure", "plain failure"),
		Entry("empty body", "", "Request failed with status 400"),
	)

	It("rejects a success response without a body", func() {
		resp := &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}
		err := chatclient.ReadStream(context.Background(), resp, collect(&[]llm.StreamEvent{}))
		Expect(err).To(MatchError("Request failed with status 200"))
	})

	It("skips events without data and drops an event that never decodes", func() {
		body := newTrackingBody("event: ping\n\n", "data: {\"broken\"\n\n", evA, evDone)

		var events []llm.StreamEvent
		Expect(chatclient.ReadStream(context.Background(), okResponse(body), collect(&events))).To(Succeed())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Content).To(Equal("A"))
	})

	It("reports transport failures", func() {
		body := newTrackingBody(evA)
		body.err = errors.New("connection reset")

		var events []llm.StreamEvent
		err := chatclient.ReadStream(context.Background(), okResponse(body), collect(&events))

		var te *llm.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(events).To(HaveLen(1))
		Expect(body.closes.Load()).To(Equal(int32(1)))
	})

	It("unblocks a pending read when cancelled", func() {
		body := newTrackingBody(evA)
		body.block = true
		ctx, cancel := context.WithCancel(context.Background())

		var events []llm.StreamEvent
		done := make(chan error, 1)
		go func() {
			done <- chatclient.ReadStream(ctx, okResponse(body), collect(&events))
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(err).To(MatchError(llm.ErrAborted))
		Expect(llm.IsAborted(err)).To(BeTrue())
		Expect(body.closes.Load()).To(Equal(int32(1)))
	})
})

var _ = Describe("ConsumeBuffer", func() {
	It("returns the incomplete remainder", func() {
		var events []llm.StreamEvent
		rest, stopped, err := chatclient.ConsumeBuffer(evA+"data: {\"con", collect(&events))
		Expect(err).NotTo(HaveOccurred())
		Expect(stopped).To(BeFalse())
		Expect(rest).To(Equal("data: {\"con"))
		Expect(events).To(HaveLen(1))
	})

	It("pushes back an event that fails to decode", func() {
		var events []llm.StreamEvent
		rest, _, err := chatclient.ConsumeBuffer("data: {oops\n\n"+evA, collect(&events))

		var decodeErr *llm.DecodeError
		Expect(errors.As(err, &decodeErr)).To(BeTrue())
		Expect(rest).To(Equal("data: {oops\n\n" + evA))
		Expect(events).To(BeEmpty())
	})

	It("accepts data lines without a space", func() {
		var events []llm.StreamEvent
		_, _, err := chatclient.ConsumeBuffer(`data:{"messageId":"m","done":true}`+"\n\n", collect(&events))
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(Equal([]llm.StreamEvent{{MessageID: "m", Done: true}}))
	})

	It("leaves buffered events untouched after a stop", func() {
		rest, stopped, err := chatclient.ConsumeBuffer(evA+evB, func(llm.StreamEvent) bool { return true })
		Expect(err).NotTo(HaveOccurred())
		Expect(stopped).To(BeTrue())
		Expect(rest).To(Equal(evB))
	})
})
