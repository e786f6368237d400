package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// drain feeds chunks one at a time, collecting every frame, and flushes at the end.
func drain(chunks ...string) []Event {
	r := NewFrameReader()
	var out []Event

	for _, chunk := range chunks {
		r.Feed([]byte(chunk))
		for {
			ev, ok := r.Next()
			if !ok {
				break
			}
			out = append(out, *ev)
		}
	}

	if ev, ok := r.Flush(); ok {
		out = append(out, *ev)
	}
	return out
}

func datas(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Data)
	}
	return out
}

const upstreamStream = ": keep-alive\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hé\"}}]}\n\n" +
	"data:{\"choices\":[{\"delta\":{\"content\":\"llo {world}\\n\"}}]}\r\n\r\n" +
	"event: chunk\nid: 7\ndata: {\"choices\":[{\"delta\":{\"content\":\"世界 \\\"quoted\\\"\"}}]}\n\n" +
	"data: {\"nested\": {\n  \"a\": \"}\",\n\n  \"b\": [1, {\"c\": 2}]\n}}\n\n" +
	"data: [1,\n 2]\n\n" +
	"data: plain text payload\n\n" +
	"data: [DONE]\n\n"

var _ = Describe("FrameReader", func() {
	Describe("Next", func() {
		It("returns a single JSON frame", func() {
			events := drain("data: {\"a\":1}\n\n")
			Expect(datas(events)).To(Equal([]string{`{"a":1}`}))
		})

		It("waits for more bytes on a partial frame", func() {
			r := NewFrameReader()
			r.Feed([]byte(`data: {"a":`))

			_, ok := r.Next()
			Expect(ok).To(BeFalse())
			Expect(r.Buffered()).To(BeNumerically(">", 0))

			r.Feed([]byte("1}\n\n"))
			ev, ok := r.Next()
			Expect(ok).To(BeTrue())
			Expect(ev.Data).To(Equal(`{"a":1}`))
		})

		It("keeps JSON objects with embedded newlines and blank lines intact", func() {
			events := drain("data: {\"a\":\n\n\"b\"}\n\n")
			Expect(datas(events)).To(Equal([]string{"{\"a\":\n\n\"b\"}"}))
		})

		It("ignores braces and escaped quotes inside strings", func() {
			events := drain(`data: {"s":"}{\"}"}` + "\n\n")
			Expect(datas(events)).To(Equal([]string{`{"s":"}{\"}"}`}))
		})

		It("accepts data without a space after the colon", func() {
			events := drain("data:{\"a\":1}\n\n")
			Expect(datas(events)).To(Equal([]string{`{"a":1}`}))
		})

		It("recognizes the done sentinel", func() {
			events := drain("data: [DONE]\n\n")
			Expect(events).To(HaveLen(1))
			Expect(events[0].IsDone()).To(BeTrue())
		})

		It("completes the sentinel at its closing bracket without a line break", func() {
			r := NewFrameReader()
			r.Feed([]byte("data: [DO"))
			_, ok := r.Next()
			Expect(ok).To(BeFalse())

			r.Feed([]byte("NE]"))
			ev, ok := r.Next()
			Expect(ok).To(BeTrue())
			Expect(ev.IsDone()).To(BeTrue())
			Expect(r.Buffered()).To(BeZero())
		})

		It("keeps JSON arrays with embedded newlines intact", func() {
			events := drain("data: [1,\n2]\n\n", "data: [{\"a\":\"]\"}]\n\n")
			Expect(datas(events)).To(Equal([]string{"[1,\n2]", `[{"a":"]"}]`}))
		})

		It("ends non-JSON payloads at the line break", func() {
			events := drain("data: hello world\r\n\r\n")
			Expect(datas(events)).To(Equal([]string{"hello world"}))
		})

		It("skips comments, blank data lines and unknown fields", func() {
			events := drain(": ping\n\ndata:\n\nretry: 100\nfoo\ndata: {\"x\":true}\n\n")
			Expect(datas(events)).To(Equal([]string{`{"x":true}`}))
		})

		It("attaches event and id annotations to the next frame only", func() {
			events := drain("event: delta\nid: 42\ndata: {\"a\":1}\n\ndata: {\"b\":2}\n\n")
			Expect(events).To(HaveLen(2))
			Expect(events[0].Type).To(Equal("delta"))
			Expect(events[0].ID).To(Equal("42"))
			Expect(events[1].Type).To(BeEmpty())
			Expect(events[1].ID).To(BeEmpty())
		})

		It("returns frames in arrival order", func() {
			events := drain(upstreamStream)
			Expect(datas(events)).To(Equal([]string{
				`{"choices":[{"delta":{"content":"Hé"}}]}`,
				`{"choices":[{"delta":{"content":"llo {world}\n"}}]}`,
				`{"choices":[{"delta":{"content":"世界 \"quoted\""}}]}`,
				"{\"nested\": {\n  \"a\": \"}\",\n\n  \"b\": [1, {\"c\": 2}]\n}}",
				"[1,\n 2]",
				"plain text payload",
				"[DONE]",
			}))
			Expect(events[2].Type).To(Equal("chunk"))
			Expect(events[2].ID).To(Equal("7"))
		})
	})

	Describe("partial delivery", func() {
		It("produces identical frames when split at any byte offset", func() {
			whole := drain(upstreamStream)

			for i := 0; i <= len(upstreamStream); i++ {
				split := drain(upstreamStream[:i], upstreamStream[i:])
				Expect(split).To(Equal(whole), "split at offset %d", i)
			}
		})

		It("produces identical frames when delivered one byte at a time", func() {
			whole := drain(upstreamStream)

			chunks := make([]string, 0, len(upstreamStream))
			for i := 0; i < len(upstreamStream); i++ {
				chunks = append(chunks, upstreamStream[i:i+1])
			}
			Expect(drain(chunks...)).To(Equal(whole))
		})
	})

	Describe("Flush", func() {
		It("resolves a trailing frame without a line break", func() {
			events := drain("data: {\"a\":1}\n\ndata: last line")
			Expect(datas(events)).To(Equal([]string{`{"a":1}`, "last line"}))
		})

		It("resolves a trailing sentinel without a line break", func() {
			events := drain("data: [DONE]")
			Expect(events).To(HaveLen(1))
			Expect(events[0].IsDone()).To(BeTrue())
		})

		It("returns an unbalanced JSON remainder raw", func() {
			events := drain("data: {\"a\":\"unterminated\n")
			Expect(datas(events)).To(Equal([]string{`{"a":"unterminated`}))
		})

		It("returns nothing for whitespace", func() {
			Expect(drain("\n\n  ")).To(BeEmpty())
		})

		It("ignores input after flushing", func() {
			r := NewFrameReader()
			_, ok := r.Flush()
			Expect(ok).To(BeFalse())

			r.Feed([]byte("data: {\"a\":1}\n\n"))
			_, ok = r.Next()
			Expect(ok).To(BeFalse())
		})
	})
})
