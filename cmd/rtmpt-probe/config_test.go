package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"
)

func TestProbe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Probe Suite")
}

var _ = Describe("Probe settings", func() {
	clearEnv := func() {
		for _, s := range knownSettings {
			os.Unsetenv(s.envVar)
		}
	}

	BeforeEach(clearEnv)
	AfterEach(clearEnv)

	When("Only flags are given", func() {
		It("uses them and fills in defaults", func() {
			s, err := loadSettings([]string{"-host", "tunnel.example.com"})
			Expect(err).ToNot(HaveOccurred())

			Expect(s.Host).To(Equal("tunnel.example.com"))
			Expect(s.Port).To(Equal(80))
			Expect(s.Secured).To(BeFalse())
			Expect(s.PollInterval).To(Equal(100 * time.Millisecond))
			Expect(s.LogLevel).To(Equal("info"))
			Expect(s.Reconnect).To(BeFalse())
		})

		It("defaults to 443 when secured", func() {
			s, err := loadSettings([]string{"-host", "h", "-secured"})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Port).To(Equal(443))
		})

		It("keeps an explicit port", func() {
			s, err := loadSettings([]string{"-host", "h", "-secured", "-port", "8443"})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Port).To(Equal(8443))
		})
	})

	When("No host is given anywhere", func() {
		It("fails", func() {
			_, err := loadSettings([]string{})
			Expect(err).To(MatchError(ContainSubstring("no host")))
		})
	})

	When("The environment is set", func() {
		BeforeEach(func() {
			os.Setenv("RTMPT_HOST", "env.example.com")
			os.Setenv("RTMPT_POLL_INTERVAL", "250ms")
		})

		It("is used where no flag is given", func() {
			s, err := loadSettings([]string{})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Host).To(Equal("env.example.com"))
			Expect(s.PollInterval).To(Equal(250 * time.Millisecond))
		})

		It("loses to a flag", func() {
			s, err := loadSettings([]string{"-host", "flag.example.com"})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Host).To(Equal("flag.example.com"))
		})
	})

	When("The environment holds garbage", func() {
		It("fails to parse", func() {
			os.Setenv("RTMPT_PORT", "eighty")
			_, err := loadSettings([]string{"-host", "h"})
			Expect(err).To(MatchError(ContainSubstring("invalid port")))
		})
	})

	When("A config file is given", func() {
		var configPath string

		BeforeEach(func() {
			configPath = filepath.Join(GinkgoT().TempDir(), "probe.yaml")
		})

		It("writes every default into it", func() {
			_, err := loadSettings([]string{"-config", configPath, "-host", "h"})
			Expect(err).ToNot(HaveOccurred())

			data, err := os.ReadFile(configPath)
			Expect(err).ToNot(HaveOccurred())

			written := map[string]map[string]string{}
			Expect(yaml.Unmarshal(data, &written)).To(Succeed())
			Expect(written).To(HaveKey("pollInterval"))
			Expect(written["pollInterval"]["value"]).To(Equal("100ms"))
			Expect(written["pollInterval"]["env"]).To(Equal("RTMPT_POLL_INTERVAL"))

			// explicit flags are not persisted
			Expect(written).ToNot(HaveKey("host"))
		})

		It("reads values from it", func() {
			Expect(os.WriteFile(configPath, []byte("host:\n  value: file.example.com\n  env: RTMPT_HOST\nsecured:\n  value: \"true\"\n  env: RTMPT_SECURED\n"), 0600)).To(Succeed())

			s, err := loadSettings([]string{"-config", configPath})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Host).To(Equal("file.example.com"))
			Expect(s.Secured).To(BeTrue())
			Expect(s.Port).To(Equal(443))
		})

		It("lets the environment win over an entry that names no variable", func() {
			Expect(os.WriteFile(configPath, []byte("host:\n  value: from-file\n"), 0600)).To(Succeed())
			os.Setenv("RTMPT_HOST", "from-env")

			s, err := loadSettings([]string{"-config", configPath})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Host).To(Equal("from-env"))

			data, err := os.ReadFile(configPath)
			Expect(err).ToNot(HaveOccurred())

			written := map[string]map[string]string{}
			Expect(yaml.Unmarshal(data, &written)).To(Succeed())
			Expect(written["host"]["value"]).To(Equal("from-env"))
			Expect(written["host"]["env"]).To(Equal("RTMPT_HOST"))
		})

		It("lets the environment win over the file", func() {
			Expect(os.WriteFile(configPath, []byte("host:\n  value: file.example.com\n  env: RTMPT_HOST\n"), 0600)).To(Succeed())
			os.Setenv("RTMPT_HOST", "env.example.com")

			s, err := loadSettings([]string{"-config", configPath})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Host).To(Equal("env.example.com"))
		})
	})
})
