package storage_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

var _ = Describe("Errors", func() {
	It("wraps sentinels for errors.Is", func() {
		var denied error = &storage.CommitDeniedError{Reason: "nope", Decision: policy.Deny("t", "r", "nope")}
		Expect(errors.Is(fmt.Errorf("post: %w", denied), storage.ErrCommitDenied)).To(BeTrue())

		var broken error = &storage.IntegrityError{ID: "abc", Reason: "hash mismatch"}
		Expect(errors.Is(broken, storage.ErrIntegrity)).To(BeTrue())
		Expect(broken.Error()).To(ContainSubstring("abc"))

		Expect(errors.Is(denied, storage.ErrIntegrity)).To(BeFalse())
	})

	It("formats not found errors", func() {
		Expect(storage.NotFoundError{}.Error()).To(Equal("entry not found"))
		Expect(storage.NotFoundError{ID: "x"}.Error()).To(Equal("entry not found: x"))
	})
})

var _ = Describe("Config", func() {
	It("fills zero limits but leaves TTLs alone", func() {
		c := storage.Config{}.Normalized()
		Expect(c.ExpiryPolicy).To(Equal(storage.ExpiryTombstone))
		Expect(c.MaxEntries).To(Equal(storage.DefaultMaxEntries))
		Expect(c.MaxPayloadBytes).To(Equal(storage.DefaultMaxPayloadBytes))
		Expect(c.ContextLimit).To(Equal(storage.DefaultContextLimit))
		Expect(c.PolicyTimeout).To(Equal(policy.DefaultTimeout))
		Expect(c.WorkingTTL).To(BeZero())
	})

	It("defaults Working entries to a one hour TTL", func() {
		Expect(storage.DefaultConfig().ExpiryDefaults().WorkingTTL).To(Equal(storage.DefaultWorkingTTL))
	})

	DescribeTable("ParseExpiryPolicy",
		func(in string, want storage.ExpiryPolicy, ok bool) {
			got, err := storage.ParseExpiryPolicy(in)
			if !ok {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("empty", "", storage.ExpiryTombstone, true),
		Entry("tombstone", "tombstone", storage.ExpiryTombstone, true),
		Entry("prune, mixed case", " Prune ", storage.ExpiryPrune, true),
		Entry("unknown", "shred", storage.ExpiryPolicy(""), false),
	)
})

var _ = Describe("Query", func() {
	var entries []*entry.Entry

	BeforeEach(func() {
		a := entry.New("alice", entry.KindFact, "Redis is fast", entry.WithConfidence(0.9))
		b := entry.New("bob", entry.KindDecision, "use Postgres", entry.WithTier(entry.TierLongTerm))
		c := entry.New("alice", entry.KindObservation, "redis latency spiked", entry.WithConfidence(0.3))
		c.CreatedEpoch = 2
		d := entry.New("carol", entry.KindFact, "old redis note")
		d.Tombstoned = true
		entries = []*entry.Entry{a, b, c, d}
	})

	payloads := func(es []*entry.Entry) []string {
		out := make([]string, 0, len(es))
		for _, e := range es {
			out = append(out, e.Payload)
		}
		return out
	}

	It("matches text case-insensitively and skips tombstones", func() {
		got := storage.Query{Text: "REDIS"}.Apply(entries)
		Expect(payloads(got)).To(Equal([]string{"Redis is fast", "redis latency spiked"}))
	})

	It("includes tombstones on request", func() {
		got := storage.Query{Text: "redis", IncludeTombstoned: true}.Apply(entries)
		Expect(got).To(HaveLen(3))
	})

	It("combines filters", func() {
		got := storage.Query{Authors: []string{"alice"}, MinConfidence: 0.5}.Apply(entries)
		Expect(payloads(got)).To(Equal([]string{"Redis is fast"}))

		got = storage.Query{Tiers: []entry.Tier{entry.TierLongTerm}}.Apply(entries)
		Expect(payloads(got)).To(Equal([]string{"use Postgres"}))

		got = storage.Query{MinEpoch: 1, Kinds: []entry.Kind{entry.KindObservation}}.Apply(entries)
		Expect(payloads(got)).To(Equal([]string{"redis latency spiked"}))
	})

	It("applies the limit and returns copies", func() {
		got := storage.Query{Limit: 1}.Apply(entries)
		Expect(got).To(HaveLen(1))
		got[0].Payload = "changed"
		Expect(entries[0].Payload).To(Equal("Redis is fast"))
	})

	It("collects stats over live entries", func() {
		var s storage.Stats
		storage.CollectStats(&s, entries)
		Expect(s.Entries).To(Equal(4))
		Expect(s.Live).To(Equal(3))
		Expect(s.Tombstoned).To(Equal(1))
		Expect(s.ByAuthor).To(HaveKeyWithValue("alice", 2))
		Expect(s.ByTier).To(HaveKeyWithValue(entry.TierLongTerm, 1))
	})
})
