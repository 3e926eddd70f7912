package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/blackboard/pkg/cache"
	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SnapshotResponse is the sealed view of a store.
type SnapshotResponse struct {
	Epoch      uint64              `json:"epoch"`
	Thumbprint snapshot.Thumbprint `json:"thumbprint"`
	SealedAt   time.Time           `json:"sealed_at"`
	Count      int                 `json:"count"`
	Prompt     string              `json:"prompt"`
	Entries    []*entry.Entry      `json:"entries"`
}

// EpochResponse reports the epoch after an advance.
type EpochResponse struct {
	Epoch      uint64              `json:"epoch"`
	Thumbprint snapshot.Thumbprint `json:"thumbprint"`
}

// VerifyResponse reports the outcome of an integrity walk.
type VerifyResponse struct {
	OK     bool   `json:"ok"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ContextRequest asks for the board's contribution to a prompt.
type ContextRequest struct {
	Prompt   string `json:"prompt"`
	Existing string `json:"existing,omitempty"`
}

// ContextResponse carries the contextualized prompt.
type ContextResponse struct {
	Context string `json:"context"`
}

// MessagesRequest describes a chat request to lay out around the snapshot.
type MessagesRequest struct {
	System  string          `json:"system"`
	Task    string          `json:"task"`
	History []cache.Message `json:"history,omitempty"`
}

// MessagesResponse is the cache-aligned message array.
type MessagesResponse struct {
	Thumbprint snapshot.Thumbprint `json:"thumbprint"`
	Segments   []cache.Segment     `json:"segments"`
	Messages   []cache.Message     `json:"messages"`
}

// UsageRequest records one model call's prompt token usage.
type UsageRequest struct {
	TotalPromptTokens uint64 `json:"total_prompt_tokens"`
	CachedTokens      uint64 `json:"cached_tokens"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// store resolves the crew store from the crew query parameter or header.
func (s *Server) store(c *fiber.Ctx) (storage.Store, error) {
	crew := c.Query("crew")
	if crew == "" {
		crew = c.Get(CrewHeader)
	}
	return s.stores.Store(c.Context(), crew)
}

// withStore resolves the store and hands it to fn, answering 503 when no
// store can be opened.
func (s *Server) withStore(fn func(c *fiber.Ctx, st storage.Store) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := s.store(c)
		if err != nil {
			s.logger.Warn("failed to resolve store", "error", err)
			return fail(c, fiber.StatusServiceUnavailable, "store unavailable")
		}
		return fn(c, st)
	}
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleStats(c *fiber.Ctx, st storage.Store) error {
	return c.JSON(st.Stats(c.Context()))
}

func (s *Server) handleSnapshot(c *fiber.Ctx, st storage.Store) error {
	snap := st.Snapshot(c.Context())
	return c.JSON(SnapshotResponse{
		Epoch:      snap.Epoch,
		Thumbprint: snap.Thumbprint,
		SealedAt:   snap.SealedAt,
		Count:      snap.Len(),
		Prompt:     snap.Prompt(),
		Entries:    snap.Entries,
	})
}

// handleQuery filters entries by the text, kind, author, tier, limit and
// include_tombstoned query parameters. kind, author and tier may repeat or
// be comma separated.
func (s *Server) handleQuery(c *fiber.Ctx, st storage.Store) error {
	q := storage.Query{
		Text:              c.Query("text"),
		Authors:           queryList(c, "author"),
		IncludeTombstoned: c.QueryBool("include_tombstoned"),
		Limit:             c.QueryInt("limit"),
	}
	for _, k := range queryList(c, "kind") {
		q.Kinds = append(q.Kinds, entry.Kind(k))
	}
	for _, t := range queryList(c, "tier") {
		tier, err := entry.ParseTier(t)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		q.Tiers = append(q.Tiers, tier)
	}
	if raw := c.Query("min_confidence"); raw != "" {
		conf, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "min_confidence must be a number")
		}
		q.MinConfidence = conf
	}

	entries, err := st.Query(c.Context(), q)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to query entries")
	}
	return c.JSON(map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func queryList(c *fiber.Ctx, key string) []string {
	var out []string
	for _, raw := range c.Context().QueryArgs().PeekMulti(key) {
		for part := range strings.SplitSeq(string(raw), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *Server) handlePost(c *fiber.Ctx, st storage.Store) error {
	var draft entry.Draft
	if err := c.BodyParser(&draft); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	e, err := draft.Entry()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	res, err := st.Post(c.Context(), e)
	var denied *storage.CommitDeniedError
	switch {
	case errors.As(err, &denied):
		return fail(c, fiber.StatusForbidden, denied.Error())
	case errors.Is(err, entry.ErrInvalidEntry):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("failed to post entry", "error", err)
		return fail(c, fiber.StatusInternalServerError, "failed to post entry")
	}

	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(res)
}

func (s *Server) handleGetEntry(c *fiber.Ctx, st storage.Store) error {
	e, err := st.Get(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusNotFound, "entry not found")
	}
	return c.JSON(e)
}

func (s *Server) handleTombstone(c *fiber.Ctx, st storage.Store) error {
	err := st.Tombstone(c.Context(), c.Params("id"))
	var missing storage.NotFoundError
	switch {
	case errors.As(err, &missing):
		return fail(c, fiber.StatusNotFound, "entry not found")
	case err != nil:
		s.logger.Error("failed to tombstone entry", "id", c.Params("id"), "error", err)
		return fail(c, fiber.StatusInternalServerError, "failed to tombstone entry")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAdvanceEpoch(c *fiber.Ctx, st storage.Store) error {
	epoch, err := st.AdvanceEpoch(c.Context())
	switch {
	case errors.Is(err, storage.ErrClosed):
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		// The epoch still advanced; the error describes journal trouble.
		s.logger.Error("epoch advanced with errors", "epoch", epoch, "error", err)
	}

	snap := st.Snapshot(c.Context())
	s.efficiency.SetThumbprint(snap.Thumbprint)
	return c.JSON(EpochResponse{Epoch: epoch, Thumbprint: snap.Thumbprint})
}

func (s *Server) handleCompact(c *fiber.Ctx, st storage.Store) error {
	stats, err := st.Compact(c.Context())
	if err != nil {
		s.logger.Error("compaction finished with errors", "error", err)
	}
	return c.JSON(stats)
}

func (s *Server) handleVerify(c *fiber.Ctx, st storage.Store) error {
	err := st.VerifyIntegrity(c.Context())
	if err == nil {
		return c.JSON(VerifyResponse{OK: true})
	}

	resp := VerifyResponse{Reason: err.Error()}
	var broken *storage.IntegrityError
	if errors.As(err, &broken) {
		resp.ID = broken.ID
		resp.Reason = broken.Reason
	}
	return c.Status(fiber.StatusConflict).JSON(resp)
}

func (s *Server) handleContext(c *fiber.Ctx, st storage.Store) error {
	var req ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	return c.JSON(ContextResponse{Context: st.Contextualize(c.Context(), req.Prompt, req.Existing)})
}

func (s *Server) handleMessages(c *fiber.Ctx, st storage.Store) error {
	var req MessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	snap := st.Snapshot(c.Context())
	return c.JSON(MessagesResponse{
		Thumbprint: snap.Thumbprint,
		Segments:   cache.BuildCachedMessageArray(snap, req.Task),
		Messages:   cache.BuildMessages(req.System, snap, req.Task, req.History),
	})
}

func (s *Server) handleUsage(c *fiber.Ctx) error {
	return c.JSON(s.efficiency.Report())
}

func (s *Server) handleRecordUsage(c *fiber.Ctx) error {
	var req UsageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.CachedTokens > req.TotalPromptTokens {
		return fail(c, fiber.StatusBadRequest, "cached_tokens exceeds total_prompt_tokens")
	}

	s.efficiency.RecordCall(req.TotalPromptTokens, req.CachedTokens)
	return c.JSON(s.efficiency.Report())
}
