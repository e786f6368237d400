package header

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
		hh.newID = func() string { return "generated-id" }
	})

	AfterEach(func() {
		app.Shutdown()
	})

	Describe("TraceID", func() {
		var got string

		BeforeEach(func() {
			app.Get("/trace", func(c *fiber.Ctx) error {
				got = hh.TraceID(c)
				return c.SendStatus(fiber.StatusOK)
			})
		})

		It("uses the client supplied trace id", func() {
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			req.Header.Set(TraceIDHeader, "client-trace")

			resp, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(got).To(Equal("client-trace"))
		})

		It("generates one when missing", func() {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/trace", nil))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(got).To(Equal("generated-id"))
		})

		It("replaces oversized ids", func() {
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			req.Header.Set(TraceIDHeader, strings.Repeat("x", maxTraceIDLength+1))

			resp, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(got).To(Equal("generated-id"))
		})
	})

	Describe("SetStreamHeaders", func() {
		It("marks the response as an uncached event stream", func() {
			app.Get("/stream", func(c *fiber.Ctx) error {
				hh.SetStreamHeaders(c, "trace-1")
				return c.SendString("data: {}\n\n")
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
			Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
			Expect(resp.Header.Get(TraceIDHeader)).To(Equal("trace-1"))
		})
	})

	Describe("SetTraceHeader", func() {
		It("skips empty trace ids", func() {
			app.Get("/err", func(c *fiber.Ctx) error {
				hh.SetTraceHeader(c, "")
				return c.SendStatus(fiber.StatusInternalServerError)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/err", nil))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get(TraceIDHeader)).To(BeEmpty())
		})
	})
})
