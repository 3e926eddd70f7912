package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/blackboard/pkg/eventstream"
	"github.com/papercomputeco/blackboard/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("returns ErrNilEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.Publish(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("accepts events and closes cleanly", func() {
		p := nop.NewPublisher()
		ev := eventstream.NewEpochSealed(eventstream.EventSource{Store: "default"}, eventstream.EpochMeta{Epoch: 1})
		Expect(p.Publish(context.Background(), ev)).To(Succeed())
		Expect(p.Close()).To(Succeed())
	})
})
