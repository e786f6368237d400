package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

var _ = Describe("dotdir", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		m = dotdir.NewManager()
	})

	chdir := func(dir string) {
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(func() { _ = os.Chdir(origDir) })
	}

	Describe("Target", func() {
		It("creates the override directory if it doesn't exist", func() {
			dir := filepath.Join(tmpDir, "newdir")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))

			info, err := os.Stat(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("prefers the override over a local .chatstream dir", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".chatstream"), 0o755)).To(Succeed())
			chdir(tmpDir)

			overrideDir := filepath.Join(tmpDir, "override")
			result, err := m.Target(overrideDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(overrideDir))
		})

		It("returns the local .chatstream dir when it exists", func() {
			local := filepath.Join(tmpDir, ".chatstream")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			chdir(tmpDir)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(local))
		})

		It("falls back to the home directory", func() {
			home := filepath.Join(tmpDir, "home")
			work := filepath.Join(tmpDir, "work")
			Expect(os.Mkdir(home, 0o755)).To(Succeed())
			Expect(os.Mkdir(work, 0o755)).To(Succeed())
			chdir(work)
			GinkgoT().Setenv("HOME", home)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(home, ".chatstream")))
		})
	})

	Describe("ActiveConversation", func() {
		It("returns nil when nothing is active", func() {
			active, err := m.LoadActiveConversation(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeNil())
		})

		It("saves and loads the active conversation", func() {
			Expect(m.SaveActiveConversation(&dotdir.ActiveConversation{ConversationID: "c1"}, tmpDir)).To(Succeed())

			active, err := m.LoadActiveConversation(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(active.ConversationID).To(Equal("c1"))
		})

		It("rejects saving without an id", func() {
			Expect(m.SaveActiveConversation(&dotdir.ActiveConversation{}, tmpDir)).To(HaveOccurred())
			Expect(m.SaveActiveConversation(nil, tmpDir)).To(HaveOccurred())
		})

		It("returns an error for invalid JSON", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "active.json"), []byte("not json"), 0o600)).To(Succeed())

			_, err := m.LoadActiveConversation(tmpDir)
			Expect(err).To(HaveOccurred())
		})

		It("clears the active conversation", func() {
			Expect(m.SaveActiveConversation(&dotdir.ActiveConversation{ConversationID: "c1"}, tmpDir)).To(Succeed())
			Expect(m.ClearActiveConversation(tmpDir)).To(Succeed())
			Expect(m.ClearActiveConversation(tmpDir)).To(Succeed())

			active, err := m.LoadActiveConversation(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeNil())
		})
	})
})
