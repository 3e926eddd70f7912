package hashed_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/eventstream"
	"github.com/papercomputeco/blackboard/pkg/metrics"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/storage"
	"github.com/papercomputeco/blackboard/pkg/storage/hashed"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev *eventstream.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType)
	}
	return out
}

func newStore(cfg storage.Config, opts ...storage.Option) *hashed.Store {
	s, err := hashed.New(context.Background(), cfg, opts...)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(s.Close)
	return s
}

func post(s *hashed.Store, author string, kind entry.Kind, payload string, opts ...entry.Option) storage.PostResult {
	res, err := s.Post(context.Background(), entry.New(author, kind, payload, opts...))
	Expect(err).NotTo(HaveOccurred())
	return res
}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		cfg   storage.Config
		store *hashed.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = storage.DefaultConfig()
		store = newStore(cfg)
	})

	It("reports its flavor", func() {
		Expect(store.Flavor()).To(Equal(hashed.Flavor))
	})

	Describe("the two-agent scenario", func() {
		It("seals both entries and deduplicates a re-post", func() {
			a := post(store, "agent1", entry.KindObservation, "the login page times out")
			b := post(store, "agent2", entry.KindDecision, "roll back the auth deploy")
			Expect(a.Created).To(BeTrue())
			Expect(b.Created).To(BeTrue())

			epoch, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(epoch).To(BeEquivalentTo(1))

			out := store.Contextualize(ctx, "any prompt", "")
			Expect(out).To(ContainSubstring("the login page times out"))
			Expect(out).To(ContainSubstring("roll back the auth deploy"))

			again := post(store, "agent1", entry.KindObservation, "the login page times out")
			Expect(again.Created).To(BeFalse())
			Expect(again.ID).To(Equal(a.ID))
			Expect(store.Len()).To(Equal(2))
		})
	})

	Describe("Post", func() {
		It("collapses identical content from different authors", func() {
			first := post(store, "agent1", entry.KindFact, "Paris is the capital of France")
			second := post(store, "agent2", entry.KindFact, "Paris  is the capital of France ")
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Created).To(BeFalse())
			Expect(store.Len()).To(Equal(1))
		})

		It("folds case only when configured to", func() {
			post(store, "a", entry.KindFact, "Market is UP")
			post(store, "a", entry.KindFact, "market is up")
			Expect(store.Len()).To(Equal(2))

			cfg.CaseInsensitive = true
			folded := newStore(cfg)
			post(folded, "a", entry.KindFact, "Market is UP")
			post(folded, "a", entry.KindFact, "market is up")
			Expect(folded.Len()).To(Equal(1))
		})

		It("does not consult the policy hook for duplicates", func() {
			var calls atomic.Int32
			counting := policy.AuthorizerFunc(func(context.Context, policy.CommitIntent) (policy.Decision, error) {
				calls.Add(1)
				return policy.Allow("counter"), nil
			})
			store = newStore(cfg, storage.WithAuthorizer(counting))

			post(store, "a", entry.KindFact, "once")
			post(store, "b", entry.KindFact, "once")
			Expect(calls.Load()).To(BeEquivalentTo(1))
		})

		It("rejects invalid entries without touching the chain", func() {
			_, err := store.Post(ctx, entry.New("a", entry.KindFact, strings.Repeat("x", storage.DefaultMaxPayloadBytes+1)))
			var invalid *entry.InvalidError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(store.LinkCount()).To(BeZero())
			Expect(store.Head()).To(Equal(entry.GenesisHash))
		})

		It("denies commits the policy refuses and records nothing", func() {
			deny := policy.AuthorizerFunc(func(_ context.Context, intent policy.CommitIntent) (policy.Decision, error) {
				Expect(intent.Action).To(Equal(policy.ActionCommit))
				Expect(intent.Resource).To(Equal(policy.ResourceSharedMemory))
				return policy.Deny("test", "no-writes", "board is frozen"), nil
			})
			pub := &recordingPublisher{}
			store = newStore(cfg, storage.WithAuthorizer(deny), storage.WithPublisher(pub))

			res, err := store.Post(ctx, entry.New("a", entry.KindFact, "blocked"))
			Expect(errors.Is(err, storage.ErrCommitDenied)).To(BeTrue())
			Expect(res.Created).To(BeFalse())
			Expect(store.Len()).To(BeZero())
			Expect(store.LinkCount()).To(BeZero())
			Expect(pub.types()).To(Equal([]string{eventstream.EventTypeEntryDenied}))
		})

		It("treats a slow policy hook as a denial", func() {
			cfg.PolicyTimeout = 10 * time.Millisecond
			slow := policy.AuthorizerFunc(func(ctx context.Context, _ policy.CommitIntent) (policy.Decision, error) {
				<-ctx.Done()
				return policy.Decision{}, ctx.Err()
			})
			store = newStore(cfg, storage.WithAuthorizer(slow))

			_, err := store.Post(ctx, entry.New("a", entry.KindFact, "late"))
			var denied *storage.CommitDeniedError
			Expect(errors.As(err, &denied)).To(BeTrue())
			Expect(denied.Decision.Rule).To(Equal("timeout"))
		})

		It("records the allow decision on the entry", func() {
			res := post(store, "a", entry.KindFact, "audited")
			got, err := store.Get(ctx, res.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PolicyAudit).NotTo(BeNil())
			Expect(got.PolicyAudit.Allowed).To(BeTrue())
			Expect(got.PolicyAudit.DecisionID).NotTo(BeEmpty())
		})

		It("tombstones superseded entries", func() {
			old := post(store, "a", entry.KindDecision, "deploy on Friday")
			post(store, "a", entry.KindDecision, "deploy on Monday", entry.WithSupersedes(old.ID))

			got, err := store.Get(ctx, old.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tombstoned).To(BeTrue())
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("re-chains tombstoned content as a new link", func() {
			first := post(store, "a", entry.KindFact, "cache is cold")
			post(store, "a", entry.KindFact, "queue is empty")
			Expect(store.Tombstone(ctx, first.ID)).To(Succeed())

			again := post(store, "a", entry.KindFact, "cache is cold")
			Expect(again.Created).To(BeTrue())
			Expect(again.ID).To(Equal(first.ID))

			got, err := store.Get(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tombstoned).To(BeFalse())
			Expect(got.Seq).To(BeEquivalentTo(2))
			Expect(store.LinkCount()).To(Equal(3))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("fails once closed", func() {
			Expect(store.Close()).To(Succeed())
			_, err := store.Post(ctx, entry.New("a", entry.KindFact, "late"))
			Expect(err).To(MatchError(storage.ErrClosed))
		})
	})

	Describe("hash chain", func() {
		It("links each entry to the previous head", func() {
			var ids []string
			for i := range 5 {
				ids = append(ids, post(store, "a", entry.KindFact, fmt.Sprintf("step %d", i)).ID)
			}

			prev := entry.GenesisHash
			for i, id := range ids {
				got, err := store.Get(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.PrevHash).To(Equal(prev))
				Expect(got.Seq).To(BeEquivalentTo(i))
				prev = id
			}
			Expect(store.Head()).To(Equal(ids[4]))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("names the entry whose prev_hash was corrupted", func() {
			var ids []string
			for i := range 4 {
				ids = append(ids, post(store, "a", entry.KindFact, fmt.Sprintf("link %d", i)).ID)
			}

			store.Tamper(ids[2], func(e *entry.Entry) { e.PrevHash = ids[0] })

			err := store.VerifyIntegrity(ctx)
			var broken *storage.IntegrityError
			Expect(errors.As(err, &broken)).To(BeTrue())
			Expect(broken.ID).To(Equal(ids[2]))
			Expect(errors.Is(err, storage.ErrIntegrity)).To(BeTrue())
		})

		It("detects a payload rewritten after commit", func() {
			res := post(store, "a", entry.KindFact, "the original claim")
			post(store, "a", entry.KindFact, "a later claim")

			store.Tamper(res.ID, func(e *entry.Entry) { e.Payload = "a forged claim" })

			var broken *storage.IntegrityError
			Expect(errors.As(store.VerifyIntegrity(ctx), &broken)).To(BeTrue())
			Expect(broken.ID).To(Equal(res.ID))
		})

		It("counts integrity failures", func() {
			reg := prometheus.NewRegistry()
			m, err := metrics.New(reg)
			Expect(err).NotTo(HaveOccurred())
			store = newStore(cfg, storage.WithMetrics(m))

			res := post(store, "a", entry.KindFact, "x")
			store.Tamper(res.ID, func(e *entry.Entry) { e.PrevHash = "bogus" })
			Expect(store.VerifyIntegrity(ctx)).NotTo(Succeed())

			Expect(testutil.GatherAndCount(reg, "blackboard_integrity_failures_total")).To(Equal(1))
		})

		It("stays valid under 50 concurrent posts", func() {
			var wg sync.WaitGroup
			for i := range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					res, err := store.Post(ctx, entry.New(fmt.Sprintf("agent-%d", i%5), entry.KindObservation, fmt.Sprintf("observation number %d", i)))
					Expect(err).NotTo(HaveOccurred())
					Expect(res.Created).To(BeTrue())
				}()
			}
			wg.Wait()

			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
			Expect(store.Len()).To(Equal(50))

			all, err := store.Query(ctx, storage.Query{Limit: -1})
			Expect(err).NotTo(HaveOccurred())
			for i, e := range all {
				Expect(e.Seq).To(BeEquivalentTo(i))
			}
		})
	})

	Describe("AdvanceEpoch", func() {
		It("returns 1..K", func() {
			for want := uint64(1); want <= 10; want++ {
				got, err := store.AdvanceEpoch(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			}
			Expect(store.Epoch()).To(BeEquivalentTo(10))
		})

		It("never seals entries created after the epoch", func() {
			for e := range 4 {
				post(store, "a", entry.KindFact, fmt.Sprintf("made in epoch %d", e))
				sealed, err := store.AdvanceEpoch(ctx)
				Expect(err).NotTo(HaveOccurred())

				snap := store.Snapshot(ctx)
				Expect(snap.Epoch).To(Equal(sealed))
				Expect(snap.Len()).To(Equal(e + 1))
				for _, got := range snap.Entries {
					Expect(got.CreatedEpoch).To(BeNumerically("<=", sealed))
				}
			}
		})

		It("keeps posts made after the seal out of the current snapshot", func() {
			post(store, "a", entry.KindFact, "before")
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			post(store, "a", entry.KindFact, "after")
			Expect(store.Contextualize(ctx, "", "")).NotTo(ContainSubstring("after"))

			_, err = store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Contextualize(ctx, "", "")).To(ContainSubstring("after"))
		})

		It("never drops posts racing an advance", func() {
			const writers, perWriter = 8, 25

			var wg sync.WaitGroup
			for w := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					for i := range perWriter {
						post(store, fmt.Sprintf("w%d", w), entry.KindObservation, fmt.Sprintf("w%d-%d", w, i))
					}
				}()
			}

			var last uint64
			for range 10 {
				epoch, err := store.AdvanceEpoch(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(epoch).To(Equal(last + 1))
				last = epoch

				for _, e := range store.Snapshot(ctx).Entries {
					Expect(e.CreatedEpoch).To(BeNumerically("<", epoch))
				}
			}
			wg.Wait()

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Snapshot(ctx).Len()).To(Equal(writers * perWriter))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("publishes an epoch event", func() {
			pub := &recordingPublisher{}
			store = newStore(cfg, storage.WithPublisher(pub))

			post(store, "a", entry.KindFact, "x")
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pub.types()).To(Equal([]string{
				eventstream.EventTypeEntryCommitted,
				eventstream.EventTypeEpochSealed,
			}))
		})
	})

	Describe("TTL sweep", func() {
		BeforeEach(func() {
			cfg.WorkingTTL = 0
		})

		It("tombstones an expired Working entry and keeps it verifiable", func() {
			store = newStore(cfg)
			scratch := post(store, "a", entry.KindPartial, "half-done draft", entry.WithTier(entry.TierWorking), entry.WithTTLEpochs(1))
			post(store, "a", entry.KindFact, "durable fact")

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Contextualize(ctx, "", "")).NotTo(ContainSubstring("half-done draft"))
			got, err := store.Get(ctx, scratch.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tombstoned).To(BeTrue())
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("prunes an expired Working entry entirely", func() {
			cfg.ExpiryPolicy = storage.ExpiryPrune
			store = newStore(cfg)
			post(store, "a", entry.KindFact, "first fact")
			scratch := post(store, "a", entry.KindPartial, "middle draft", entry.WithTier(entry.TierWorking), entry.WithTTLEpochs(1))
			post(store, "a", entry.KindFact, "last fact")

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Get(ctx, scratch.ID)
			Expect(err).To(MatchError(storage.NotFoundError{ID: scratch.ID}))
			Expect(store.Len()).To(Equal(2))
			Expect(store.Contextualize(ctx, "", "")).NotTo(ContainSubstring("middle draft"))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("moves the head back when the head is pruned", func() {
			cfg.ExpiryPolicy = storage.ExpiryPrune
			store = newStore(cfg)
			kept := post(store, "a", entry.KindFact, "kept")
			post(store, "a", entry.KindPartial, "scratch", entry.WithTier(entry.TierWorking), entry.WithTTLEpochs(1))

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Head()).To(Equal(kept.ID))

			next := post(store, "a", entry.KindFact, "next")
			got, err := store.Get(ctx, next.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PrevHash).To(Equal(kept.ID))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("folds pruned links at the start of the chain into the anchor", func() {
			cfg.ExpiryPolicy = storage.ExpiryPrune
			store = newStore(cfg)
			gone := post(store, "a", entry.KindPartial, "oldest scratch", entry.WithTier(entry.TierWorking), entry.WithTTLEpochs(1))
			post(store, "a", entry.KindFact, "survivor")

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Anchor()).To(Equal(gone.ID))
			Expect(store.LinkCount()).To(Equal(1))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("expires Working entries by wall clock", func() {
			now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
			var mu sync.Mutex
			clock := func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return now
			}

			cfg.WorkingTTL = time.Minute
			store = newStore(cfg, storage.WithClock(clock))
			post(store, "a", entry.KindPartial, "short lived", entry.WithTier(entry.TierWorking))
			post(store, "a", entry.KindFact, "session fact")

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Contextualize(ctx, "", "")).To(ContainSubstring("short lived"))

			mu.Lock()
			now = now.Add(2 * time.Minute)
			mu.Unlock()

			_, err = store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Contextualize(ctx, "", "")).NotTo(ContainSubstring("short lived"))
			Expect(store.Contextualize(ctx, "", "")).To(ContainSubstring("session fact"))
		})

		It("never expires Session or LongTerm entries without a TTL", func() {
			cfg.WorkingTTLEpochs = 1
			store = newStore(cfg)
			post(store, "a", entry.KindFact, "session")
			post(store, "a", entry.KindFact, "long term", entry.WithTier(entry.TierLongTerm))

			for range 3 {
				_, err := store.AdvanceEpoch(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(store.Snapshot(ctx).Len()).To(Equal(2))
		})
	})

	Describe("compaction", func() {
		BeforeEach(func() {
			cfg.WorkingTTL = 0
			cfg.MaxEntries = 3
		})

		It("removes tombstoned entries first, then the oldest Working entries", func() {
			store = newStore(cfg)
			post(store, "a", entry.KindFact, "L1", entry.WithTier(entry.TierLongTerm))
			s1 := post(store, "a", entry.KindFact, "S1")
			w1 := post(store, "a", entry.KindFact, "W1", entry.WithTier(entry.TierWorking))
			post(store, "a", entry.KindFact, "W2", entry.WithTier(entry.TierWorking))
			post(store, "a", entry.KindFact, "S2")
			Expect(store.Tombstone(ctx, s1.ID)).To(Succeed())

			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Len()).To(Equal(3))
			_, err = store.Get(ctx, s1.ID)
			Expect(err).To(HaveOccurred())
			_, err = store.Get(ctx, w1.ID)
			Expect(err).To(HaveOccurred())

			out := store.Contextualize(ctx, "", "")
			Expect(out).To(ContainSubstring("L1"))
			Expect(out).To(ContainSubstring("W2"))
			Expect(out).To(ContainSubstring("S2"))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("never removes Session or LongTerm entries", func() {
			cfg.MaxEntries = 1
			store = newStore(cfg)
			post(store, "a", entry.KindFact, "one", entry.WithTier(entry.TierLongTerm))
			post(store, "a", entry.KindFact, "two")
			post(store, "a", entry.KindFact, "three", entry.WithTier(entry.TierLongTerm))

			stats, err := store.Compact(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Removed).To(BeZero())
			Expect(store.Len()).To(Equal(3))
		})

		It("does not count a link that was replaced since it was read", func() {
			store = newStore(cfg)
			first := post(store, "a", entry.KindPartial, "cache is cold", entry.WithTier(entry.TierWorking))
			post(store, "a", entry.KindPartial, "queue is empty", entry.WithTier(entry.TierWorking))
			Expect(store.Tombstone(ctx, first.ID)).To(Succeed())
			stale, err := store.Get(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())

			post(store, "a", entry.KindPartial, "cache is cold", entry.WithTier(entry.TierWorking))

			removed, err := store.RemoveEntry(ctx, stale)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
			Expect(store.Len()).To(Equal(2))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})

		It("withdraws compacted entries from the sealed snapshot", func() {
			store = newStore(cfg)
			for i := range 3 {
				post(store, "a", entry.KindPartial, fmt.Sprintf("draft %d", i), entry.WithTier(entry.TierWorking))
			}
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			post(store, "a", entry.KindPartial, "draft 3", entry.WithTier(entry.TierWorking))

			stats, err := store.Compact(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Removed).To(Equal(1))

			out := store.Contextualize(ctx, "", "")
			Expect(out).NotTo(ContainSubstring("draft 0"))
			Expect(out).To(ContainSubstring("draft 1"))
			Expect(store.Snapshot(ctx).Len()).To(Equal(2))
		})

		It("reports what an explicit compaction removed", func() {
			store = newStore(cfg)
			for i := range 5 {
				post(store, "a", entry.KindPartial, fmt.Sprintf("draft %d", i), entry.WithTier(entry.TierWorking))
			}

			stats, err := store.Compact(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(Equal(storage.CompactionStats{Before: 5, After: 3, Pruned: 2, Removed: 2}))
			Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		})
	})

	Describe("Contextualize", func() {
		It("is empty for an empty board", func() {
			Expect(store.Contextualize(ctx, "anything", "")).To(BeEmpty())
			Expect(store.Contextualize(ctx, "anything", "prior")).To(Equal("prior"))
		})

		It("is byte-identical for every caller within an epoch", func() {
			post(store, "a", entry.KindFact, "alpha")
			post(store, "b", entry.KindDecision, "beta", entry.WithTier(entry.TierLongTerm))
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			first := store.Contextualize(ctx, "task one", "")
			post(store, "c", entry.KindFact, "gamma")
			second := store.Contextualize(ctx, "task two", "")
			Expect(second).To(Equal(first))
		})

		It("keeps the thumbprint when an epoch adds nothing", func() {
			post(store, "a", entry.KindFact, "alpha")
			_, _ = store.AdvanceEpoch(ctx)
			before := store.Snapshot(ctx).Thumbprint

			_, _ = store.AdvanceEpoch(ctx)
			Expect(store.Snapshot(ctx).Thumbprint).To(Equal(before))

			post(store, "a", entry.KindFact, "beta")
			_, _ = store.AdvanceEpoch(ctx)
			Expect(store.Snapshot(ctx).Thumbprint).NotTo(Equal(before))
		})

		It("withdraws an entry tombstoned after the seal", func() {
			secret := post(store, "agent1", entry.KindFact, "secret plan alpha")
			post(store, "agent2", entry.KindFact, "public plan beta")
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Contextualize(ctx, "", "")).To(ContainSubstring("secret plan alpha"))

			Expect(store.Tombstone(ctx, secret.ID)).To(Succeed())

			out := store.Contextualize(ctx, "", "")
			Expect(out).NotTo(ContainSubstring("secret plan alpha"))
			Expect(out).To(ContainSubstring("public plan beta"))
			Expect(store.Snapshot(ctx).Contains(secret.ID)).To(BeFalse())
			Expect(store.Snapshot(ctx).Epoch).To(BeEquivalentTo(1))
		})

		It("withdraws an entry superseded after the seal", func() {
			old := post(store, "agent1", entry.KindDecision, "ship on Friday")
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			post(store, "agent1", entry.KindDecision, "ship on Monday", entry.WithSupersedes(old.ID))

			out := store.Contextualize(ctx, "", "")
			Expect(out).NotTo(ContainSubstring("ship on Friday"))
			Expect(out).NotTo(ContainSubstring("ship on Monday"))
			Expect(store.Snapshot(ctx).IsEmpty()).To(BeTrue())

			_, err = store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Contextualize(ctx, "", "")).To(ContainSubstring("ship on Monday"))
		})

		It("never republishes tombstones that race an advance", func() {
			var ids []string
			for i := range 40 {
				ids = append(ids, post(store, "a", entry.KindFact, fmt.Sprintf("claim %d", i)).ID)
			}
			_, err := store.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			var wg sync.WaitGroup
			for _, id := range ids {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					Expect(store.Tombstone(ctx, id)).To(Succeed())
				}()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := store.AdvanceEpoch(ctx)
				Expect(err).NotTo(HaveOccurred())
			}()
			wg.Wait()

			Expect(store.Snapshot(ctx).IsEmpty()).To(BeTrue())
			Expect(store.Contextualize(ctx, "", "")).To(BeEmpty())
		})

		It("appends the existing context after the snapshot", func() {
			post(store, "a", entry.KindFact, "alpha")
			_, _ = store.AdvanceEpoch(ctx)

			out := store.Contextualize(ctx, "", "from the caller")
			Expect(out).To(HavePrefix("[Blackboard: 1 entries]"))
			Expect(out).To(HaveSuffix("\n\nfrom the caller"))
		})
	})

	It("resets to an empty board at epoch zero", func() {
		post(store, "a", entry.KindFact, "x")
		_, _ = store.AdvanceEpoch(ctx)

		Expect(store.Reset(ctx)).To(Succeed())
		Expect(store.Len()).To(BeZero())
		Expect(store.Epoch()).To(BeZero())
		Expect(store.Head()).To(Equal(entry.GenesisHash))
		Expect(store.Snapshot(ctx).IsEmpty()).To(BeTrue())
		Expect(store.VerifyIntegrity(ctx)).To(Succeed())
	})

	It("keeps the chain consistent when resets race posts", func() {
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := store.Post(ctx, entry.New("a", entry.KindFact, fmt.Sprintf("racing %d", i)))
				Expect(err).NotTo(HaveOccurred())
			}()
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(store.Reset(ctx)).To(Succeed())
			}()
		}
		wg.Wait()

		Expect(store.VerifyIntegrity(ctx)).To(Succeed())
		Expect(store.LinkCount()).To(Equal(store.Len()))

		post(store, "a", entry.KindFact, "after the race")
		Expect(store.VerifyIntegrity(ctx)).To(Succeed())
	})

	It("summarizes contents", func() {
		res := post(store, "a", entry.KindFact, "one")
		post(store, "b", entry.KindFact, "two")
		Expect(store.Tombstone(ctx, res.ID)).To(Succeed())

		st := store.Stats(ctx)
		Expect(st.Entries).To(Equal(2))
		Expect(st.Live).To(Equal(1))
		Expect(st.Tombstoned).To(Equal(1))
		Expect(st.Head).NotTo(Equal(entry.GenesisHash))
	})

	It("counts post outcomes", func() {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		Expect(err).NotTo(HaveOccurred())
		store = newStore(cfg, storage.WithMetrics(m))

		post(store, "a", entry.KindFact, "x")
		post(store, "a", entry.KindFact, "x")
		_, _ = store.Post(ctx, entry.New("", entry.KindFact, "x"))

		expected := `
# HELP blackboard_posts_total Post attempts by outcome.
# TYPE blackboard_posts_total counter
blackboard_posts_total{flavor="hashed",outcome="created"} 1
blackboard_posts_total{flavor="hashed",outcome="deduplicated"} 1
blackboard_posts_total{flavor="hashed",outcome="invalid"} 1
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected), "blackboard_posts_total")).To(Succeed())
	})

	It("keeps epoch and size series apart for stores sharing a registry", func() {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		Expect(err).NotTo(HaveOccurred())
		research := newStore(cfg, storage.WithMetrics(m), storage.WithName("research"))
		writing := newStore(cfg, storage.WithMetrics(m), storage.WithName("writing"))

		post(research, "a", entry.KindFact, "one")
		post(research, "a", entry.KindFact, "two")
		post(writing, "b", entry.KindFact, "three")
		_, err = research.AdvanceEpoch(ctx)
		Expect(err).NotTo(HaveOccurred())

		expected := `
# HELP blackboard_entries Entries held in the store, tombstoned included.
# TYPE blackboard_entries gauge
blackboard_entries{flavor="hashed",store="research"} 2
blackboard_entries{flavor="hashed",store="writing"} 1
# HELP blackboard_epoch Current epoch.
# TYPE blackboard_epoch gauge
blackboard_epoch{flavor="hashed",store="research"} 1
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected), "blackboard_entries", "blackboard_epoch")).To(Succeed())
	})
})
