package storage

import (
	"slices"
	"strings"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

// DefaultQueryLimit caps Query results when Query.Limit is zero.
const DefaultQueryLimit = 10

// Query filters entries. Zero-valued fields do not filter.
type Query struct {
	// Text matches payloads containing it, case-insensitively.
	Text string `json:"text,omitempty"`

	Kinds   []entry.Kind `json:"kinds,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Tiers   []entry.Tier `json:"tiers,omitempty"`

	IncludeTombstoned bool    `json:"include_tombstoned,omitempty"`
	MinConfidence     float64 `json:"min_confidence,omitempty"`
	MinEpoch          uint64  `json:"min_epoch,omitempty"`

	// Limit caps the result count. Negative means unlimited.
	Limit int `json:"limit,omitempty"`
}

// Matches reports whether e passes every filter.
func (q Query) Matches(e *entry.Entry) bool {
	if e.Tombstoned && !q.IncludeTombstoned {
		return false
	}
	if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, e.Kind) {
		return false
	}
	if len(q.Authors) > 0 && !slices.Contains(q.Authors, e.Author) {
		return false
	}
	if len(q.Tiers) > 0 && !slices.Contains(q.Tiers, e.Tier) {
		return false
	}
	if e.Confidence < q.MinConfidence {
		return false
	}
	if e.CreatedEpoch < q.MinEpoch {
		return false
	}
	if q.Text != "" && !strings.Contains(strings.ToLower(e.Payload), strings.ToLower(q.Text)) {
		return false
	}
	return true
}

// Apply filters entries, which must already be in the desired order, and
// returns clones of at most the limit.
func (q Query) Apply(entries []*entry.Entry) []*entry.Entry {
	limit := q.Limit
	if limit == 0 {
		limit = DefaultQueryLimit
	}

	var out []*entry.Entry
	for _, e := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}
