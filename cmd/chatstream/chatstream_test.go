package chatstreamcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	chatstreamcmder "github.com/papercomputeco/chatstream/cmd/chatstream"
)

var _ = Describe("NewChatstreamCmd", func() {
	It("registers every subcommand", func() {
		cmd := chatstreamcmder.NewChatstreamCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "chat", "conversations", "config", "init", "version"))
	})

	It("has global debug and config-dir flags", func() {
		cmd := chatstreamcmder.NewChatstreamCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("passes --config-dir through to subcommands", func() {
		dir := GinkgoT().TempDir()

		var out bytes.Buffer
		cmd := chatstreamcmder.NewChatstreamCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config-dir", dir, "config", "set", "upstream.model", "from-root"})
		Expect(cmd.Execute()).To(Succeed())

		out.Reset()
		cmd = chatstreamcmder.NewChatstreamCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config-dir", dir, "config", "get", "upstream.model"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("from-root"))
	})
})
