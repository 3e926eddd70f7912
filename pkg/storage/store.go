// Package storage defines the blackboard store capability shared by every
// backend, along with the errors, configuration and options they accept.
package storage

import (
	"context"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
)

// Store is the capability agents and the orchestrator use to share
// knowledge. All methods are safe for concurrent use.
type Store interface {
	// Post commits an entry. Posting content that is already live is a
	// no-op reported with Created == false and a nil error. A refused
	// commit returns *CommitDeniedError; a malformed entry returns
	// *entry.InvalidError.
	Post(ctx context.Context, e *entry.Entry) (PostResult, error)

	// Contextualize returns the board's contribution to a prompt followed
	// by existing. It never fails; an empty board yields existing.
	Contextualize(ctx context.Context, prompt, existing string) string

	// AdvanceEpoch seals the current epoch: it sweeps expired entries,
	// compacts when over capacity and publishes a new snapshot. It returns
	// the new epoch number.
	AdvanceEpoch(ctx context.Context) (uint64, error)

	// Compact removes entries until the store is back under its capacity.
	Compact(ctx context.Context) (CompactionStats, error)

	// Tombstone logically deletes an entry.
	Tombstone(ctx context.Context, id string) error

	// VerifyIntegrity walks the hash chain and returns *IntegrityError at
	// the first broken link. Backends without a chain return nil.
	VerifyIntegrity(ctx context.Context) error

	// Reset empties the store and returns it to epoch 0.
	Reset(ctx context.Context) error

	// Get returns a copy of the entry with the given id, tombstoned or not.
	Get(ctx context.Context, id string) (*entry.Entry, error)

	// Query filters entries. Results are copies, oldest first.
	Query(ctx context.Context, q Query) ([]*entry.Entry, error)

	// Snapshot returns the most recently sealed snapshot.
	Snapshot(ctx context.Context) *snapshot.Snapshot

	Epoch() uint64
	Len() int
	Stats(ctx context.Context) Stats

	// Flavor names the backend implementation.
	Flavor() string

	Close() error
}

// PostResult reports what Post did.
type PostResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// CompactionStats reports what a compaction pass removed.
type CompactionStats struct {
	Before     int `json:"before"`
	After      int `json:"after"`
	Tombstoned int `json:"tombstoned"`
	Pruned     int `json:"pruned"`
	Removed    int `json:"removed"`
}

// Stats summarizes store contents.
type Stats struct {
	Flavor     string             `json:"flavor"`
	Epoch      uint64             `json:"epoch"`
	Entries    int                `json:"entries"`
	Live       int                `json:"live"`
	Tombstoned int                `json:"tombstoned"`
	ByTier     map[entry.Tier]int `json:"by_tier"`
	ByAuthor   map[string]int     `json:"by_author"`
	Head       string             `json:"head,omitempty"`
	Thumbprint string             `json:"thumbprint"`
}

// CollectStats fills the per-entry counters of s from entries.
func CollectStats(s *Stats, entries []*entry.Entry) {
	s.Entries = len(entries)
	s.ByTier = make(map[entry.Tier]int)
	s.ByAuthor = make(map[string]int)
	for _, e := range entries {
		if e.Tombstoned {
			s.Tombstoned++
			continue
		}
		s.Live++
		s.ByTier[e.Tier]++
		s.ByAuthor[e.Author]++
	}
}
