package entry_test

import (
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

var _ = Describe("Entry", func() {
	Describe("New", func() {
		It("defaults to the session tier with full confidence", func() {
			e := entry.New("agent-1", entry.KindFact, "market size is 4.2B")

			Expect(e.Tier).To(Equal(entry.TierSession))
			Expect(e.Confidence).To(Equal(1.0))
			Expect(e.ID).To(BeEmpty())
		})

		It("applies options", func() {
			e := entry.New("agent-1", entry.KindObservation, "tool output",
				entry.WithTier(entry.TierWorking),
				entry.WithTTLEpochs(2),
				entry.WithTTL(time.Minute),
				entry.WithConfidence(1.7),
				entry.WithMetadata("tool", "serper"),
				entry.WithSupersedes("abc"),
				entry.WithEvidence("def", "ghi"),
			)

			Expect(e.Tier).To(Equal(entry.TierWorking))
			Expect(e.TTLEpochs).To(Equal(uint64(2)))
			Expect(e.TTL).To(Equal(time.Minute))
			Expect(e.Confidence).To(Equal(1.0))
			Expect(e.Metadata).To(HaveKeyWithValue("tool", "serper"))
			Expect(e.Supersedes).To(ConsistOf("abc"))
			Expect(e.Evidence).To(ConsistOf("def", "ghi"))
		})
	})

	Describe("ComputeID", func() {
		opts := entry.NormalizeOptions{}

		It("produces a 64 character hex digest", func() {
			id := entry.ComputeID(entry.TierSession, "hello", opts)
			Expect(id).To(HaveLen(64))
			Expect(id).To(MatchRegexp("^[0-9a-f]+$"))
		})

		It("ignores whitespace differences", func() {
			a := entry.ComputeID(entry.TierSession, "  market\tis   up\n", opts)
			b := entry.ComputeID(entry.TierSession, "market is up", opts)
			Expect(a).To(Equal(b))
		})

		It("distinguishes tiers", func() {
			a := entry.ComputeID(entry.TierSession, "market is up", opts)
			b := entry.ComputeID(entry.TierWorking, "market is up", opts)
			Expect(a).NotTo(Equal(b))
		})

		It("is case sensitive unless configured otherwise", func() {
			a := entry.ComputeID(entry.TierSession, "Market is UP", opts)
			b := entry.ComputeID(entry.TierSession, "market is up", opts)
			Expect(a).NotTo(Equal(b))

			ci := entry.NormalizeOptions{CaseInsensitive: true}
			Expect(entry.ComputeID(entry.TierSession, "Market is UP", ci)).
				To(Equal(entry.ComputeID(entry.TierSession, "market is up", ci)))
		})
	})

	Describe("Validate", func() {
		limits := entry.Limits{MaxPayloadBytes: 16}

		It("accepts a well formed entry", func() {
			Expect(entry.New("a", entry.KindFact, "ok").Validate(limits)).To(Succeed())
		})

		DescribeTable("rejects malformed entries",
			func(e *entry.Entry, reason string) {
				err := e.Validate(limits)
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, entry.ErrInvalidEntry)).To(BeTrue())

				var invalid *entry.InvalidError
				Expect(errors.As(err, &invalid)).To(BeTrue())
				Expect(invalid.Reason).To(ContainSubstring(reason))
			},
			Entry("empty payload", entry.New("a", entry.KindFact, "   \n\t"), "payload is empty"),
			Entry("oversized payload", entry.New("a", entry.KindFact, strings.Repeat("x", 17)), "limit is 16"),
			Entry("missing author", entry.New("", entry.KindFact, "x"), "author"),
			Entry("missing kind", entry.New("a", "", "x"), "kind"),
			Entry("unknown tier", entry.New("a", entry.KindFact, "x", entry.WithTier("forever")), "unknown tier"),
		)
	})

	Describe("Expired", func() {
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

		It("never expires session entries without a TTL", func() {
			e := entry.New("a", entry.KindFact, "x")
			e.CreatedAt = now.Add(-48 * time.Hour)

			Expect(e.Expired(now, 100, entry.ExpiryDefaults{WorkingTTL: time.Second, WorkingTTLEpochs: 1})).To(BeFalse())
		})

		It("expires working entries by epoch", func() {
			e := entry.New("a", entry.KindObservation, "x", entry.WithTier(entry.TierWorking), entry.WithTTLEpochs(1))
			e.CreatedEpoch = 3
			e.CreatedAt = now

			Expect(e.Expired(now, 3, entry.ExpiryDefaults{})).To(BeFalse())
			Expect(e.Expired(now, 4, entry.ExpiryDefaults{})).To(BeTrue())
		})

		It("applies working defaults when no TTL is set", func() {
			e := entry.New("a", entry.KindObservation, "x", entry.WithTier(entry.TierWorking))
			e.CreatedAt = now.Add(-time.Hour)

			Expect(e.Expired(now, 0, entry.ExpiryDefaults{WorkingTTL: 2 * time.Hour})).To(BeFalse())
			Expect(e.Expired(now, 0, entry.ExpiryDefaults{WorkingTTL: time.Hour})).To(BeTrue())
		})

		It("honours an explicit TTL on a long-term entry", func() {
			e := entry.New("a", entry.KindFact, "x", entry.WithTier(entry.TierLongTerm), entry.WithTTL(time.Minute))
			e.CreatedAt = now.Add(-2 * time.Minute)

			Expect(e.Expired(now, 0, entry.ExpiryDefaults{})).To(BeTrue())
		})

		It("treats tombstoned entries as invisible", func() {
			e := entry.New("a", entry.KindFact, "x")
			e.Tombstoned = true

			Expect(e.Visible(now, 0, entry.ExpiryDefaults{})).To(BeFalse())
		})
	})

	Describe("Clone", func() {
		It("does not share mutable state", func() {
			e := entry.New("a", entry.KindFact, "x", entry.WithMetadata("k", "v"), entry.WithEvidence("e1"))
			e.PolicyAudit = &entry.PolicyAudit{Allowed: true}

			c := e.Clone()
			c.Metadata["k"] = "changed"
			c.Evidence[0] = "changed"
			c.PolicyAudit.Reason = "changed"

			Expect(e.Metadata["k"]).To(Equal("v"))
			Expect(e.Evidence[0]).To(Equal("e1"))
			Expect(e.PolicyAudit.Reason).To(BeEmpty())
		})
	})

	Describe("ParseTier", func() {
		It("accepts aliases", func() {
			Expect(entry.ParseTier("stm")).To(Equal(entry.TierWorking))
			Expect(entry.ParseTier("LTM")).To(Equal(entry.TierLongTerm))
			Expect(entry.ParseTier("")).To(Equal(entry.TierSession))
		})

		It("rejects unknown names", func() {
			_, err := entry.ParseTier("forever")
			Expect(err).To(HaveOccurred())
		})

		It("orders long-term before session before working", func() {
			Expect(entry.TierLongTerm.Priority()).To(BeNumerically("<", entry.TierSession.Priority()))
			Expect(entry.TierSession.Priority()).To(BeNumerically("<", entry.TierWorking.Priority()))
		})
	})

	Describe("String", func() {
		It("truncates long payloads", func() {
			e := entry.New("agent", entry.KindFact, strings.Repeat("x", 100))
			e.ID = "abcdef0123456789"
			s := e.String()
			Expect(s).To(HavePrefix("[abcdef01] fact by agent (conf=1.00): "))
			Expect(s).To(HaveSuffix(strings.Repeat("x", 80) + "..."))
		})
	})
})
