package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/logger"
	"github.com/papercomputeco/blackboard/pkg/policy"
)

const rulesTOML = `
name = "crew-rules"
deny_authors = ["intern"]
deny_kinds = ["veto"]

[author_tiers]
scratch = ["working"]
`

// replaceFile swaps the file in with a rename, the way editors save.
func replaceFile(path, content string) {
	tmp := path + ".tmp"
	Expect(os.WriteFile(tmp, []byte(content), 0o600)).To(Succeed())
	Expect(os.Rename(tmp, path)).To(Succeed())
}

func intentFor(author string, kind entry.Kind, tier entry.Tier) policy.CommitIntent {
	return policy.CommitIntent{
		Action:   policy.ActionCommit,
		Resource: policy.ResourceSharedMemory,
		Author:   author,
		Kind:     kind,
		Tier:     tier,
	}
}

var _ = Describe("RuleSet", func() {
	var (
		rules *policy.RuleSet
		path  string
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "rules.toml")
		Expect(os.WriteFile(path, []byte(rulesTOML), 0o600)).To(Succeed())

		var err error
		rules, err = policy.LoadRules(path)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("decisions",
		func(intent policy.CommitIntent, allowed bool, rule string) {
			d, err := rules.Authorize(context.Background(), intent)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Allowed).To(Equal(allowed))
			Expect(d.Rule).To(Equal(rule))
			Expect(d.DecidedBy).To(Equal("crew-rules"))
		},
		Entry("ordinary commit", intentFor("researcher", entry.KindFact, entry.TierSession), true, ""),
		Entry("denied author", intentFor("intern", entry.KindFact, entry.TierSession), false, "deny_authors"),
		Entry("denied kind", intentFor("researcher", entry.KindVeto, entry.TierSession), false, "deny_kinds"),
		Entry("restricted author in its tier", intentFor("scratch", entry.KindFact, entry.TierWorking), true, ""),
		Entry("restricted author outside its tier", intentFor("scratch", entry.KindFact, entry.TierLongTerm), false, "author_tiers"),
	)

	It("rejects rules naming an unknown tier", func() {
		bad := filepath.Join(GinkgoT().TempDir(), "bad.toml")
		Expect(os.WriteFile(bad, []byte("[author_tiers]\nx = [\"forever\"]\n"), 0o600)).To(Succeed())

		_, err := policy.LoadRules(bad)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("forever"))
	})

	It("reports a missing file", func() {
		_, err := policy.LoadRules(filepath.Join(GinkgoT().TempDir(), "missing.toml"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Watcher", func() {
	var (
		w      *policy.Watcher
		path   string
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "rules.toml")
		Expect(os.WriteFile(path, []byte(rulesTOML), 0o600)).To(Succeed())

		var err error
		w, err = policy.NewWatcher(path, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		go func() { _ = w.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Expect(w.Close()).To(Succeed())
	})

	It("hot-reloads rules written to disk", func() {
		intent := intentFor("researcher", entry.KindFact, entry.TierSession)

		d, err := w.Authorize(context.Background(), intent)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Allowed).To(BeTrue())

		replaceFile(path, `deny_authors = ["researcher"]`)

		Eventually(func() bool {
			d, _ := w.Authorize(context.Background(), intent)
			return d.Allowed
		}).WithTimeout(5 * time.Second).WithPolling(20 * time.Millisecond).Should(BeFalse())
	})

	It("keeps the previous rules when the new file does not parse", func() {
		replaceFile(path, "deny_authors = [unterminated")

		Eventually(func() error {
			select {
			case err := <-w.Reloaded():
				return err
			default:
				return nil
			}
		}).WithTimeout(5 * time.Second).WithPolling(20 * time.Millisecond).Should(HaveOccurred())
		Expect(w.Rules().Name).To(Equal("crew-rules"))
	})
})
