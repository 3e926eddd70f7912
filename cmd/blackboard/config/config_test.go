package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/blackboard/cmd/blackboard/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .blackboard dir so the manager picks it up
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".blackboard"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			_, err := run("set", "store.flavor", "durable")
			Expect(err).NotTo(HaveOccurred())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".blackboard", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`flavor = "durable"`))
		})

		It("rejects unknown keys", func() {
			_, err := run("set", "proxy.provider", "anthropic")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := run("set", "store.flavor")
			Expect(err).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			_, err := run("set")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid values", func() {
			_, err := run("set", "store.max_entries", "lots")
			Expect(err).To(HaveOccurred())

			_, err = run("set", "store.flavor", "quantum")
			Expect(err).To(HaveOccurred())

			_, err = run("set", "epoch.schedule", "whenever")
			Expect(err).To(HaveOccurred())
		})

		It("accepts cron descriptors for the epoch schedule", func() {
			_, err := run("set", "epoch.schedule", "@every 1m")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := run("set", "events.brokers", "a:9092,b:9092")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("get", "events.brokers")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("a:9092,b:9092"))
		})

		It("reports defaults for unset keys", func() {
			out, err := run("get", "api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(":8090"))
		})

		It("rejects unknown keys", func() {
			_, err := run("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			_, err := run("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("store.flavor"))
			Expect(out).To(ContainSubstring("epoch.schedule"))
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("shows values from the config file", func() {
			_, err := run("set", "durable.sqlite_path", "./board.db")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("./board.db"))
			Expect(out).To(ContainSubstring("config.toml"))
		})

		It("rejects any arguments", func() {
			_, err := run("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})
