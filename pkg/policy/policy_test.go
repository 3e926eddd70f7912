package policy_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/policy"
)

var _ = Describe("Evaluate", func() {
	var intent policy.CommitIntent

	BeforeEach(func() {
		e := entry.New("agent-a", entry.KindFact, "the sky is blue")
		e.ID = entry.ComputeID(e.Tier, e.Payload, entry.NormalizeOptions{})
		intent = policy.NewCommitIntent(e)
	})

	It("describes the commit as a write to shared memory", func() {
		Expect(intent.Action).To(Equal("blackboard commit"))
		Expect(intent.Resource).To(Equal("shared memory"))
		Expect(intent.PayloadDigest).To(HaveLen(64))
		Expect(intent.Author).To(Equal("agent-a"))
	})

	It("allows when no authorizer is configured", func() {
		d := policy.Evaluate(context.Background(), nil, intent, time.Second)
		Expect(d.Allowed).To(BeTrue())
	})

	It("passes through an allow decision and stamps an id", func() {
		a := policy.AuthorizerFunc(func(context.Context, policy.CommitIntent) (policy.Decision, error) {
			return policy.Decision{Allowed: true, DecidedBy: "test"}, nil
		})

		d := policy.Evaluate(context.Background(), a, intent, time.Second)
		Expect(d.Allowed).To(BeTrue())
		Expect(d.ID).NotTo(BeEmpty())
		Expect(d.DecidedAt).NotTo(BeZero())
	})

	It("treats an authorizer error as a denial", func() {
		a := policy.AuthorizerFunc(func(context.Context, policy.CommitIntent) (policy.Decision, error) {
			return policy.Decision{}, errors.New("engine offline")
		})

		d := policy.Evaluate(context.Background(), a, intent, time.Second)
		Expect(d.Allowed).To(BeFalse())
		Expect(d.Reason).To(ContainSubstring("engine offline"))
	})

	It("treats a timeout as a denial even when the authorizer ignores ctx", func() {
		release := make(chan struct{})
		defer close(release)

		a := policy.AuthorizerFunc(func(context.Context, policy.CommitIntent) (policy.Decision, error) {
			<-release
			return policy.Allow("slow"), nil
		})

		start := time.Now()
		d := policy.Evaluate(context.Background(), a, intent, 20*time.Millisecond)
		Expect(d.Allowed).To(BeFalse())
		Expect(d.Rule).To(Equal("timeout"))
		Expect(d.Reason).To(Equal(policy.ErrTimeout.Error()))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("gives denials without a reason a default one", func() {
		a := policy.AuthorizerFunc(func(context.Context, policy.CommitIntent) (policy.Decision, error) {
			return policy.Decision{Allowed: false}, nil
		})

		d := policy.Evaluate(context.Background(), a, intent, time.Second)
		Expect(d.Allowed).To(BeFalse())
		Expect(d.Reason).To(Equal("denied"))
	})

	It("converts a decision into an audit record", func() {
		d := policy.Deny("rules", "deny_kinds", "nope")
		audit := d.Audit()
		Expect(audit.Allowed).To(BeFalse())
		Expect(audit.DecisionID).To(Equal(d.ID))
		Expect(audit.Rule).To(Equal("deny_kinds"))
	})
})
