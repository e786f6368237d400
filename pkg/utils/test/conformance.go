package testutils

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// DescribeDriver registers the behaviour every storage.Driver must have.
// newDriver is called before each spec; the driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("stores and retrieves a conversation with ordered messages", func() {
			conv := NewTestConversation("c1", "2024-01-01T00:00:00Z", "hello", "hi there", "how are you")
			Expect(driver.Put(ctx, conv)).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(conv))
		})

		It("stores a conversation without messages", func() {
			conv := NewTestConversation("empty", "2024-01-01T00:00:00Z")
			Expect(driver.Put(ctx, conv)).To(Succeed())

			got, err := driver.Get(ctx, "empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(BeEmpty())
		})

		It("replaces an existing conversation entirely", func() {
			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z", "a", "b", "c"))).To(Succeed())

			replacement := NewTestConversation("c1", "2024-02-01T00:00:00Z", "only")
			replacement.Title = "Renamed"
			Expect(driver.Put(ctx, replacement)).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(replacement))
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("rejects a nil conversation", func() {
			Expect(driver.Put(ctx, nil)).To(HaveOccurred())
		})

		It("rejects a conversation without id", func() {
			Expect(driver.Put(ctx, &llm.Conversation{})).To(HaveOccurred())
		})

		It("hands out copies", func() {
			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z", "original"))).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			got.Messages[0].Content = "mutated"

			again, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Messages[0].Content).To(Equal("original"))
		})
	})

	Describe("List", func() {
		It("returns nothing for an empty store", func() {
			convs, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(BeEmpty())
		})

		It("orders conversations most recently updated first", func() {
			Expect(driver.Put(ctx, NewTestConversation("old", "2024-01-01T00:00:00Z", "x"))).To(Succeed())
			Expect(driver.Put(ctx, NewTestConversation("new", "2024-03-01T00:00:00.5Z", "y"))).To(Succeed())
			Expect(driver.Put(ctx, NewTestConversation("mid", "2024-03-01T00:00:00.25Z", "z"))).To(Succeed())

			convs, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(3))
			Expect(convs[0].ID).To(Equal("new"))
			Expect(convs[1].ID).To(Equal("mid"))
			Expect(convs[2].ID).To(Equal("old"))
			Expect(convs[0].Messages).To(HaveLen(1))
			Expect(convs[0].Messages[0].Content).To(Equal("y"))
		})
	})

	Describe("Delete", func() {
		It("removes the conversation and its messages", func() {
			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z", "a"))).To(Succeed())
			Expect(driver.Delete(ctx, "c1")).To(Succeed())

			_, err := driver.Get(ctx, "c1")
			Expect(storage.IsNotFound(err)).To(BeTrue())

			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z"))).To(Succeed())
			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(BeEmpty())
		})

		It("ignores unknown ids", func() {
			Expect(driver.Delete(ctx, "missing")).To(Succeed())
		})
	})

	Describe("AppendMessage", func() {
		It("appends in order and bumps the updated timestamp", func() {
			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z", "first"))).To(Succeed())

			Expect(driver.AppendMessage(ctx, "c1", llm.NewChatMessage("m2", llm.RoleAssistant, "second"))).To(Succeed())
			Expect(driver.AppendMessage(ctx, "c1", llm.NewChatMessage("m3", llm.RoleUser, "third"))).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(HaveLen(3))
			Expect(got.Messages[1].ID).To(Equal("m2"))
			Expect(got.Messages[2].Content).To(Equal("third"))
			Expect(got.UpdatedAt).NotTo(Equal("2024-01-01T00:00:00Z"))
		})

		It("returns NotFoundError for unknown conversations", func() {
			err := driver.AppendMessage(ctx, "missing", llm.NewChatMessage("m1", llm.RoleUser, "x"))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("ReplaceMessage", func() {
		BeforeEach(func() {
			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z", "question", ""))).To(Succeed())
		})

		It("sets the content of the message", func() {
			Expect(driver.ReplaceMessage(ctx, "c1", "c1-mb", "Hel")).To(Succeed())
			Expect(driver.ReplaceMessage(ctx, "c1", "c1-mb", "Hello")).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages[1].Content).To(Equal("Hello"))
			Expect(got.Messages[0].Content).To(Equal("question"))
		})

		It("returns NotFoundError for unknown messages", func() {
			err := driver.ReplaceMessage(ctx, "c1", "nope", "x")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns NotFoundError for unknown conversations", func() {
			err := driver.ReplaceMessage(ctx, "missing", "c1-mb", "x")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("Rename", func() {
		It("sets the title", func() {
			Expect(driver.Put(ctx, NewTestConversation("c1", "2024-01-01T00:00:00Z", "a"))).To(Succeed())
			Expect(driver.Rename(ctx, "c1", "Trip planning")).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Trip planning"))
		})

		It("returns NotFoundError for unknown conversations", func() {
			Expect(storage.IsNotFound(driver.Rename(ctx, "missing", "x"))).To(BeTrue())
		})
	})
}
