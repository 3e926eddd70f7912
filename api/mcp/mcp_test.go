package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/logger"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

func text(res *mcp.CallToolResult) string {
	ExpectWithOffset(1, res.Content).To(HaveLen(1))
	tc, ok := res.Content[0].(*mcp.TextContent)
	ExpectWithOffset(1, ok).To(BeTrue())
	return tc.Text
}

var _ = Describe("MCP Server", func() {
	var (
		server   *Server
		registry *blackboard.Registry
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()

		cfg := blackboard.DefaultConfig()
		cfg.Mode = blackboard.ModeSeparate

		var err error
		registry, err = blackboard.NewRegistry(cfg,
			storage.WithAuthorizer(&policy.RuleSet{DenyAuthors: []string{"mallory"}}),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(registry.Close)

		server, err = NewServer(Config{Stores: registry, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the store provider is nil", func() {
			_, err := NewServer(Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("store provider is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := NewServer(Config{Stores: registry})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates a noop server without dependencies", func() {
			noop, err := NewServer(Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("blackboard_post", func() {
		It("posts and deduplicates", func() {
			res, out, err := server.handlePost(ctx, nil, PostInput{Author: "planner", Kind: "decision", Payload: "ship on friday"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Created).To(BeTrue())
			Expect(out.ID).To(HaveLen(64))

			var decoded PostOutput
			Expect(json.Unmarshal([]byte(text(res)), &decoded)).To(Succeed())
			Expect(decoded).To(Equal(out))

			_, again, err := server.handlePost(ctx, nil, PostInput{Author: "coder", Kind: "decision", Payload: "ship on friday"})
			Expect(err).NotTo(HaveOccurred())
			Expect(again.ID).To(Equal(out.ID))
			Expect(again.Created).To(BeFalse())
		})

		It("reports denied commits as tool errors", func() {
			res, _, err := server.handlePost(ctx, nil, PostInput{Author: "mallory", Kind: "fact", Payload: "trust me"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(ContainSubstring("commit denied"))
		})

		It("reports invalid drafts as tool errors", func() {
			res, _, err := server.handlePost(ctx, nil, PostInput{Author: "a", Kind: "fact", Payload: "x", TTL: "soon"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})

		It("keeps crews apart", func() {
			_, _, err := server.handlePost(ctx, nil, PostInput{Crew: "red", Author: "a", Kind: "fact", Payload: "red only"})
			Expect(err).NotTo(HaveOccurred())

			_, red, err := server.handleQuery(ctx, nil, QueryInput{Crew: "red"})
			Expect(err).NotTo(HaveOccurred())
			Expect(red.Count).To(Equal(1))

			_, blue, err := server.handleQuery(ctx, nil, QueryInput{Crew: "blue"})
			Expect(err).NotTo(HaveOccurred())
			Expect(blue.Count).To(BeZero())
		})
	})

	Describe("blackboard_query", func() {
		It("filters by author and kind", func() {
			for _, in := range []PostInput{
				{Author: "planner", Kind: "goal", Payload: "migrate the schema"},
				{Author: "coder", Kind: "observation", Payload: "the migration needs a lock"},
				{Author: "coder", Kind: "decision", Payload: "use an online migration"},
			} {
				_, _, err := server.handlePost(ctx, nil, in)
				Expect(err).NotTo(HaveOccurred())
			}

			_, out, err := server.handleQuery(ctx, nil, QueryInput{Authors: []string{"coder"}, Kinds: []string{"decision"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].Payload).To(Equal("use an online migration"))

			_, limited, err := server.handleQuery(ctx, nil, QueryInput{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(limited.Results).To(HaveLen(2))
		})
	})

	Describe("blackboard_context and blackboard_snapshot", func() {
		It("serves the sealed snapshot", func() {
			_, _, err := server.handlePost(ctx, nil, PostInput{Author: "a", Kind: "fact", Payload: "the api is versioned"})
			Expect(err).NotTo(HaveOccurred())

			_, before, err := server.handleSnapshot(ctx, nil, SnapshotInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(before.Count).To(BeZero())

			_, err = registry.AdvanceEpoch(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, after, err := server.handleSnapshot(ctx, nil, SnapshotInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Epoch).To(BeEquivalentTo(1))
			Expect(after.Count).To(Equal(1))
			Expect(after.Thumbprint).NotTo(Equal(before.Thumbprint))

			_, out, err := server.handleContext(ctx, nil, ContextInput{Prompt: "api", Existing: "prior"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Context).To(ContainSubstring("the api is versioned"))
			Expect(out.Context).To(HaveSuffix("prior"))
		})
	})
})
