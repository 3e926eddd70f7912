package hashed

import (
	"context"
	"fmt"
	"slices"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

// link is one position in the hash chain. A stub is a link whose entry was
// removed; it keeps the id and PrevHash so the links after it still verify.
type link struct {
	seq  uint64
	id   string
	prev string
	stub bool
}

// find returns the index of the link at seq. Links are kept in seq order.
// Callers hold chainMu.
func (s *Store) find(seq uint64) (int, bool) {
	return slices.BinarySearchFunc(s.links, seq, func(l link, seq uint64) int {
		switch {
		case l.seq < seq:
			return -1
		case l.seq > seq:
			return 1
		}
		return 0
	})
}

// removeLocked physically removes e. The last link is dropped outright and
// the head falls back to its predecessor; any other link is left behind as
// a stub. It reports false when the link is already gone or stubbed, e.g.
// because e was re-posted since the caller read it. Callers hold chainMu.
func (s *Store) removeLocked(ctx context.Context, e *entry.Entry) (bool, error) {
	i, ok := s.find(e.Seq)
	if !ok || s.links[i].stub {
		return false, nil
	}

	if i == len(s.links)-1 {
		if s.journal != nil {
			if err := s.journal.Remove(ctx, e.Seq); err != nil {
				return false, fmt.Errorf("journal remove %d: %w", e.Seq, err)
			}
		}
		s.head = s.links[i].prev
		s.links = s.links[:i]
	} else {
		if s.journal != nil {
			if err := s.journal.Stub(ctx, e.Seq); err != nil {
				return false, fmt.Errorf("journal stub %d: %w", e.Seq, err)
			}
		}
		s.links[i].stub = true
	}

	if cur, ok := s.entries.get(e.ID); ok && cur.Seq == e.Seq {
		s.entries.remove(e.ID)
	}
	return true, nil
}

// tombstoneLocked flags the entry stored under id. It reports whether the
// flag changed. Callers hold chainMu.
func (s *Store) tombstoneLocked(ctx context.Context, id string) (bool, error) {
	cur, ok := s.entries.get(id)
	if !ok {
		return false, storage.NotFoundError{ID: id}
	}
	if cur.Tombstoned {
		return false, nil
	}

	if s.journal != nil {
		if err := s.journal.Tombstone(ctx, cur.Seq); err != nil {
			return false, fmt.Errorf("journal tombstone %d: %w", cur.Seq, err)
		}
	}

	s.entries.swap(id, func(e *entry.Entry) *entry.Entry {
		c := e.Clone()
		c.Tombstoned = true
		return c
	})
	return true, nil
}

// withdrawLocked republishes the sealed snapshot, at the same epoch,
// without ids. Callers hold chainMu.
func (s *Store) withdrawLocked(ids ...string) {
	cur := s.sealed.Load()
	if next := cur.Without(ids...); next != cur {
		s.sealed.Store(next)
	}
}

// refreshLocked withdraws every sealed entry that has been tombstoned,
// removed or replaced since the snapshot was built. Callers hold chainMu.
func (s *Store) refreshLocked() *snapshot.Snapshot {
	cur := s.sealed.Load()

	var stale []string
	for _, e := range cur.Entries {
		if now, ok := s.entries.get(e.ID); !ok || now.Seq != e.Seq || now.Tombstoned {
			stale = append(stale, e.ID)
		}
	}

	next := cur.Without(stale...)
	if next != cur {
		s.sealed.Store(next)
	}
	return next
}

// foldLocked absorbs leading stubs into the anchor. Nothing before the
// first real entry needs to be kept once its PrevHash is recorded.
// Callers hold chainMu.
func (s *Store) foldLocked(ctx context.Context) error {
	for len(s.links) > 0 && s.links[0].stub {
		l := s.links[0]
		if s.journal != nil {
			if err := s.journal.Remove(ctx, l.seq); err != nil {
				return fmt.Errorf("journal remove stub %d: %w", l.seq, err)
			}
		}
		s.anchor = l.id
		s.links = s.links[1:]
	}
	return nil
}

// verify walks the chain from the anchor. Entries are read back from the
// map so that tampering with a stored entry is caught, not just tampering
// with the link list.
func (s *Store) verify() error {
	s.chainMu.Lock()
	links := slices.Clone(s.links)
	head, anchor := s.head, s.anchor
	s.chainMu.Unlock()

	norm := s.cfg.NormalizeOptions()
	prev := anchor
	for _, l := range links {
		if l.stub {
			if l.prev != prev {
				return &storage.IntegrityError{ID: l.id, Reason: "removed link does not follow its predecessor"}
			}
			prev = l.id
			continue
		}

		e, ok := s.entries.get(l.id)
		if !ok || e.Seq != l.seq {
			return &storage.IntegrityError{ID: l.id, Reason: fmt.Sprintf("entry at seq %d is missing", l.seq)}
		}
		if e.PrevHash != prev {
			return &storage.IntegrityError{
				ID:     e.ID,
				Reason: fmt.Sprintf("prev_hash %s does not match predecessor %s", short(e.PrevHash), short(prev)),
			}
		}
		if got := entry.ComputeID(e.Tier, e.Payload, norm); got != e.ID {
			return &storage.IntegrityError{ID: e.ID, Reason: "content hash does not match payload"}
		}
		prev = e.ID
	}

	if head != prev {
		return &storage.IntegrityError{ID: head, Reason: fmt.Sprintf("head does not match last link %s", short(prev))}
	}

	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
