// Package cache lays out outbound prompts so that the sealed blackboard
// snapshot forms a stable, cacheable prefix, and tracks how well provider
// prompt caching is being used.
package cache

import (
	"github.com/papercomputeco/blackboard/pkg/snapshot"
)

// Hint tells the prompt layer whether a segment may be served from a
// provider's prompt cache.
type Hint string

const (
	// HintStable marks a reusable prefix: identical for every call against
	// the same sealed epoch.
	HintStable Hint = "stable"

	// HintVolatile marks content that must be recomputed per call.
	HintVolatile Hint = "volatile"
)

// Segment is one ordered piece of an outbound prompt.
type Segment struct {
	Content   string `json:"content"`
	CacheHint Hint   `json:"cache_hint"`
}

// BuildCachedMessageArray returns the snapshot serialization as the first,
// stable segment followed by the per-call task prompt. Two calls against the
// same sealed snapshot always produce byte-identical first segments.
func BuildCachedMessageArray(snap *snapshot.Snapshot, taskPrompt string) []Segment {
	prefix := ""
	if snap != nil {
		prefix = snap.Prompt()
	}

	return []Segment{
		{Content: prefix, CacheHint: HintStable},
		{Content: taskPrompt, CacheHint: HintVolatile},
	}
}

// ContentBlock is an Anthropic-style text block.
type ContentBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// CacheControl marks the end of a cacheable prefix.
type CacheControl struct {
	Type string `json:"type"`
}

// Message is a chat message whose content is either a string or a list of
// content blocks.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// EphemeralMarker wraps content in a text block carrying an ephemeral cache
// control marker.
func EphemeralMarker(content string) ContentBlock {
	return ContentBlock{
		Type:         "text",
		Text:         content,
		CacheControl: &CacheControl{Type: "ephemeral"},
	}
}

// BuildMessages lays out a full chat request:
//
//	[0] system: role instructions + snapshot (cache boundary)
//	[1] user:   task-specific content
//	[2..]       conversation history
//
// For N agents reading the same epoch, the first pays the cache write and
// the rest read the prefix from cache.
func BuildMessages(systemPrompt string, snap *snapshot.Snapshot, task string, history []Message) []Message {
	system := []ContentBlock{{Type: "text", Text: systemPrompt}}
	if snap != nil && !snap.IsEmpty() {
		system = append(system, EphemeralMarker(snap.Prompt()))
	}

	messages := make([]Message, 0, 2+len(history))
	messages = append(messages,
		Message{Role: "system", Content: system},
		Message{Role: "user", Content: task},
	)

	return append(messages, history...)
}
