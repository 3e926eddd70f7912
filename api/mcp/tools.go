package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

var (
	postToolName    = "blackboard_post"
	postDescription = "Post an entry (fact, decision, observation, ...) to the shared blackboard. Identical payloads at the same tier are deduplicated and return the existing id."

	queryToolName    = "blackboard_query"
	queryDescription = "List live blackboard entries, optionally filtered by keyword, author, or kind."

	contextToolName    = "blackboard_context"
	contextDescription = "Return the blackboard's sealed context for a prompt, prepended to any existing context."

	snapshotToolName    = "blackboard_snapshot"
	snapshotDescription = "Return the sealed snapshot of the blackboard: epoch, thumbprint, and rendered prompt."
)

// PostInput represents the input arguments for the post tool.
type PostInput struct {
	Crew       string         `json:"crew,omitempty" jsonschema:"crew whose board to post to (separate mode only)"`
	Author     string         `json:"author" jsonschema:"name of the posting agent"`
	Kind       string         `json:"kind" jsonschema:"entry kind, e.g. fact, decision, observation, hypothesis"`
	Payload    string         `json:"payload" jsonschema:"the content of the entry"`
	Tier       string         `json:"tier,omitempty" jsonschema:"retention tier: working, session (default) or long_term"`
	Confidence *float64       `json:"confidence,omitempty" jsonschema:"self-assessed confidence in [0, 1] (default: 1)"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"free-form structured context"`
	Supersedes []string       `json:"supersedes,omitempty" jsonschema:"ids of entries this entry replaces"`
	Evidence   []string       `json:"evidence,omitempty" jsonschema:"ids of entries supporting this entry"`
	TTL        string         `json:"ttl,omitempty" jsonschema:"optional lifetime as a Go duration, e.g. 10m"`
}

// PostOutput represents the output of the post tool.
type PostOutput struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// QueryInput represents the input arguments for the query tool.
type QueryInput struct {
	Crew    string   `json:"crew,omitempty" jsonschema:"crew whose board to read (separate mode only)"`
	Text    string   `json:"text,omitempty" jsonschema:"keyword the payload must contain"`
	Authors []string `json:"authors,omitempty" jsonschema:"only entries by these authors"`
	Kinds   []string `json:"kinds,omitempty" jsonschema:"only entries of these kinds"`
	Limit   int      `json:"limit,omitempty" jsonschema:"maximum number of entries to return (default: 20)"`
}

// QueryResult is a single entry returned by the query tool.
type QueryResult struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Kind       string  `json:"kind"`
	Tier       string  `json:"tier"`
	Payload    string  `json:"payload"`
	Confidence float64 `json:"confidence"`
}

// QueryOutput represents the output of the query tool.
type QueryOutput struct {
	Results []QueryResult `json:"results"`
	Count   int           `json:"count"`
}

// ContextInput represents the input arguments for the context tool.
type ContextInput struct {
	Crew     string `json:"crew,omitempty" jsonschema:"crew whose board to read (separate mode only)"`
	Prompt   string `json:"prompt" jsonschema:"the prompt the context is for"`
	Existing string `json:"existing,omitempty" jsonschema:"context already assembled by the caller"`
}

// ContextOutput represents the output of the context tool.
type ContextOutput struct {
	Context string `json:"context"`
}

// SnapshotInput represents the input arguments for the snapshot tool.
type SnapshotInput struct {
	Crew string `json:"crew,omitempty" jsonschema:"crew whose board to read (separate mode only)"`
}

// SnapshotOutput represents the output of the snapshot tool.
type SnapshotOutput struct {
	Epoch      uint64 `json:"epoch"`
	Thumbprint string `json:"thumbprint"`
	Count      int    `json:"count"`
	Prompt     string `json:"prompt"`
}

const defaultQueryLimit = 20

func (s *Server) handlePost(ctx context.Context, _ *mcp.CallToolRequest, input PostInput) (*mcp.CallToolResult, PostOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP post request", "crew", input.Crew, "author", input.Author, "kind", input.Kind)

	st, err := s.config.Stores.Store(ctx, input.Crew)
	if err != nil {
		logger.Error("failed to resolve store", "crew", input.Crew, "error", err)
		return errorResult("Failed to open blackboard: %v", err), PostOutput{}, nil
	}

	draft := entry.Draft{
		Author:     input.Author,
		Kind:       input.Kind,
		Payload:    input.Payload,
		Tier:       input.Tier,
		Confidence: input.Confidence,
		Metadata:   input.Metadata,
		Supersedes: input.Supersedes,
		Evidence:   input.Evidence,
		TTL:        input.TTL,
	}
	e, err := draft.Entry()
	if err != nil {
		return errorResult("%v", err), PostOutput{}, nil
	}

	res, err := st.Post(ctx, e)
	if err != nil {
		if !errors.Is(err, storage.ErrCommitDenied) && !errors.Is(err, entry.ErrInvalidEntry) {
			logger.Error("failed to post entry", "error", err)
		}
		return errorResult("Failed to post entry: %v", err), PostOutput{}, nil
	}

	return result(PostOutput{ID: res.ID, Created: res.Created})
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	st, err := s.config.Stores.Store(ctx, input.Crew)
	if err != nil {
		s.config.Logger.Error("failed to resolve store", "crew", input.Crew, "error", err)
		return errorResult("Failed to open blackboard: %v", err), QueryOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	q := storage.Query{Text: input.Text, Authors: input.Authors, Limit: limit}
	for _, k := range input.Kinds {
		q.Kinds = append(q.Kinds, entry.Kind(k))
	}

	entries, err := st.Query(ctx, q)
	if err != nil {
		return errorResult("Failed to query blackboard: %v", err), QueryOutput{}, nil
	}

	out := QueryOutput{Results: make([]QueryResult, 0, len(entries))}
	for _, e := range entries {
		out.Results = append(out.Results, QueryResult{
			ID:         e.ID,
			Author:     e.Author,
			Kind:       string(e.Kind),
			Tier:       string(e.Tier),
			Payload:    e.Payload,
			Confidence: e.Confidence,
		})
	}
	out.Count = len(out.Results)

	return result(out)
}

func (s *Server) handleContext(ctx context.Context, _ *mcp.CallToolRequest, input ContextInput) (*mcp.CallToolResult, ContextOutput, error) {
	st, err := s.config.Stores.Store(ctx, input.Crew)
	if err != nil {
		s.config.Logger.Error("failed to resolve store", "crew", input.Crew, "error", err)
		return errorResult("Failed to open blackboard: %v", err), ContextOutput{}, nil
	}

	return result(ContextOutput{Context: st.Contextualize(ctx, input.Prompt, input.Existing)})
}

func (s *Server) handleSnapshot(ctx context.Context, _ *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, SnapshotOutput, error) {
	st, err := s.config.Stores.Store(ctx, input.Crew)
	if err != nil {
		s.config.Logger.Error("failed to resolve store", "crew", input.Crew, "error", err)
		return errorResult("Failed to open blackboard: %v", err), SnapshotOutput{}, nil
	}

	snap := st.Snapshot(ctx)
	return result(SnapshotOutput{
		Epoch:      snap.Epoch,
		Thumbprint: string(snap.Thumbprint),
		Count:      snap.Len(),
		Prompt:     snap.Prompt(),
	})
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// result returns the structured output with its JSON serialization in a
// TextContent block for clients that ignore structured content.
func result[T any](out T) (*mcp.CallToolResult, T, error) {
	data, err := json.Marshal(out)
	if err != nil {
		var zero T
		return errorResult("Failed to serialize result: %v", err), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, out, nil
}
