package storage

import (
	"context"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

// Journal persists the hash chain so a store survives restarts. Rows are
// keyed by chain sequence number. Calls are made while the store holds its
// chain lock, in chain order.
type Journal interface {
	// Load returns the persisted state. An empty journal yields a state at
	// epoch 0 with the genesis anchor and head.
	Load(ctx context.Context) (*JournalState, error)

	// Append records a new chain link.
	Append(ctx context.Context, e *entry.Entry) error

	// Tombstone flags the link at seq.
	Tombstone(ctx context.Context, seq uint64) error

	// Stub drops the payload of the link at seq, keeping only its id and
	// PrevHash so the chain stays verifiable.
	Stub(ctx context.Context, seq uint64) error

	// Remove deletes the link at seq entirely.
	Remove(ctx context.Context, seq uint64) error

	// SaveMeta records the epoch, the seal point of its snapshot (the first
	// seq not sealed into it), the head and the anchor.
	SaveMeta(ctx context.Context, epoch, sealSeq uint64, head, anchor string) error

	// Reset deletes everything.
	Reset(ctx context.Context) error

	Close() error
}

// JournalState is what a journal restores.
type JournalState struct {
	Epoch uint64

	// SealSeq is the seal point saved with Epoch. Links below it belong to
	// the epoch's snapshot.
	SealSeq uint64

	Head   string
	Anchor string

	// Entries holds live and tombstoned links in seq order.
	Entries []*entry.Entry

	// Stubs holds links whose entries were removed, in seq order.
	Stubs []Stub
}

// Stub is a chain link whose entry has been removed.
type Stub struct {
	Seq      uint64
	ID       string
	PrevHash string
}
